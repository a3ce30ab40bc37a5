package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Session is the client-local record that lets a reload skip re-registration.
// IsAdmin is a display hint; admin truth always comes from the roster.
type Session struct {
	RoomID    uuid.UUID `json:"room_id"`
	Username  string    `json:"username"`
	UserID    uuid.UUID `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RoleFor returns the role label of a participant given the admin flag.
func RoleFor(isAdmin bool) string {
	if isAdmin {
		return RoleAdmin
	}
	return RoleMember
}
