package httpdto

import (
	"time"

	"ephemera/internal/domain"
)

type CreateRoomRequest struct {
	Name       string `json:"name" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Kind       string `json:"kind"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type VerifyRoomRequest struct {
	Password string `json:"password" binding:"required"`
}

type RoomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func FromRoom(r domain.Room) RoomResponse {
	return RoomResponse{
		ID:        r.ID.String(),
		Name:      r.Name,
		Kind:      string(r.Kind),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func (r RoomResponse) ToDomain() (domain.Room, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{
		ID:        id,
		Name:      r.Name,
		Kind:      domain.RoomKind(r.Kind),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}, nil
}
