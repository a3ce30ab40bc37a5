package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ephemera/internal/domain"
)

type RoomRepository interface {
	Create(ctx context.Context, r *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Room, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type ParticipantRepository interface {
	Join(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (domain.Participant, bool, error)
	List(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error)
	Exists(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (bool, error)
	SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error)
	Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error)
	Remove(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error
}

type MessageRepository interface {
	Append(ctx context.Context, m *domain.ChatMessage) error
	ListRecent(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error)
}

type DocumentRepository interface {
	GetByName(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error)
	Create(ctx context.Context, d domain.Document) (domain.Document, bool, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	DeactivateForRooms(ctx context.Context, roomIDs []uuid.UUID) (int64, error)
}
