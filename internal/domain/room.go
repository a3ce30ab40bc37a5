package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room is a time-boxed, password-gated collaboration container.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Kind         RoomKind  `json:"kind"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Active       bool      `json:"active"`
}

// Accessible reports whether the room may still be used at instant now.
func (r Room) Accessible(now time.Time) bool {
	return r.Active && now.Before(r.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (r Room) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
