// Package gateway is the client side of the Persistence Gateway: durable
// room, participant, message and document operations behind one interface.
package gateway

import (
	"context"

	"github.com/google/uuid"

	"ephemera/internal/domain"
)

type JoinRequest struct {
	RoomID   uuid.UUID
	Password string
	Username string
	UserID   uuid.UUID
}

// JoinResult is either a registered participant with its room pass, or the
// room alone with RequiresUsername set.
type JoinResult struct {
	Room             domain.Room
	Participant      domain.Participant
	Token            string
	RequiresUsername bool
}

type AppendRequest struct {
	RoomID   uuid.UUID
	Username string
	UserID   uuid.UUID
	Body     string
	Kind     domain.MessageKind
}

type CreateDocumentRequest struct {
	RoomID    uuid.UUID
	Name      string
	Language  string
	Content   string
	CreatedBy string
}

// Gateway errors are *apperrors.Error values or wrap the apperrors sentinels:
// NotFound, Gone, Conflict (USERNAME_EXISTS), Forbidden, Unauthorized and
// Transient. Implementations retry transient failures a bounded number of times.
type Gateway interface {
	GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error)
	Join(ctx context.Context, req JoinRequest) (JoinResult, error)
	// UsePass installs a room pass restored from a stored session.
	UsePass(roomID uuid.UUID, token string)

	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error)
	SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error)
	Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error)
	Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error

	ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error)
	AppendMessage(ctx context.Context, req AppendRequest) (domain.ChatMessage, error)

	GetDocument(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error)
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (domain.Document, error)
	UpdateDocument(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error)
}
