package httpdto

import (
	"time"

	"github.com/google/uuid"

	"ephemera/internal/domain"
)

type JoinRoomRequest struct {
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

// JoinRoomResponse carries either a participant with its room pass, or only
// the room with RequiresUsername set when no username was supplied.
type JoinRoomResponse struct {
	Room             RoomResponse         `json:"room"`
	Participant      *ParticipantResponse `json:"participant,omitempty"`
	Token            string               `json:"token,omitempty"`
	RequiresUsername bool                 `json:"requires_username,omitempty"`
}

type PresenceRequest struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type KickRequest struct {
	AdminUsername string `json:"admin_username" binding:"required"`
	AdminUserID   string `json:"admin_user_id" binding:"required"`
}

type ParticipantResponse struct {
	RoomID   string    `json:"room_id"`
	Username string    `json:"username"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsOnline bool      `json:"is_online"`
}

type ParticipantListResponse struct {
	Participants []ParticipantResponse `json:"participants"`
}

func FromParticipant(p domain.Participant) ParticipantResponse {
	return ParticipantResponse{
		RoomID:   p.RoomID.String(),
		Username: p.Username,
		UserID:   p.UserID.String(),
		JoinedAt: p.JoinedAt,
		LastSeen: p.LastSeen,
		IsOnline: p.IsOnline,
	}
}

func FromParticipants(ps []domain.Participant) ParticipantListResponse {
	out := make([]ParticipantResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromParticipant(p))
	}
	return ParticipantListResponse{Participants: out}
}

func (p ParticipantResponse) ToDomain() (domain.Participant, error) {
	roomID, err := parseID(p.RoomID)
	if err != nil {
		return domain.Participant{}, err
	}
	userID, err := parseID(p.UserID)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{
		RoomID:   roomID,
		Username: p.Username,
		UserID:   userID,
		JoinedAt: p.JoinedAt,
		LastSeen: p.LastSeen,
		IsOnline: p.IsOnline,
	}, nil
}

func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
