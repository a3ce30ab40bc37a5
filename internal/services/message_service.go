package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
	"ephemera/internal/events"
	"ephemera/internal/metrics"
	"ephemera/internal/repository"
	apperrors "ephemera/pkg/errors"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxMessageBytes     = 64 << 10
)

type MessageService struct {
	rooms   *RoomService
	members MemberChecker
	repo    repository.MessageRepository
	bus     RoomBroadcaster
	log     *zap.Logger
}

func NewMessageService(rooms *RoomService, members MemberChecker, repo repository.MessageRepository, bus RoomBroadcaster, log *zap.Logger) *MessageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{rooms: rooms, members: members, repo: repo, bus: bus, log: log}
}

type AppendInput struct {
	RoomID   uuid.UUID
	Username string
	UserID   uuid.UUID
	Body     string
	Kind     domain.MessageKind
}

// Append stores a message from a current participant. System messages are
// server-only.
func (s *MessageService) Append(ctx context.Context, in AppendInput) (domain.ChatMessage, error) {
	if in.Kind == "" {
		in.Kind = domain.MessageKindText
	}
	if !in.Kind.Valid() || in.Body == "" || len(in.Body) > MaxMessageBytes {
		return domain.ChatMessage{}, apperrors.ErrInvalidInput
	}
	if in.Kind == domain.MessageKindSystem {
		return domain.ChatMessage{}, apperrors.ErrForbidden
	}
	if _, err := s.rooms.Accessible(ctx, in.RoomID); err != nil {
		return domain.ChatMessage{}, err
	}
	if err := requireMember(ctx, s.members, in.RoomID, in.Username, in.UserID); err != nil {
		return domain.ChatMessage{}, err
	}

	m := domain.ChatMessage{
		RoomID:   in.RoomID,
		Username: in.Username,
		UserID:   in.UserID,
		Body:     in.Body,
		Kind:     in.Kind,
	}
	if err := s.repo.Append(ctx, &m); err != nil {
		return domain.ChatMessage{}, err
	}
	metrics.MessagesPosted.WithLabelValues(string(m.Kind)).Inc()
	if s.bus != nil {
		if err := s.bus.PublishRoom(ctx, in.RoomID, events.Chat{Message: m}); err != nil {
			s.log.Warn("chat broadcast failed", zap.String("room_id", in.RoomID.String()), zap.Error(err))
		}
	}
	return m, nil
}

// List returns the latest limit messages, oldest first.
func (s *MessageService) List(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.ListRecent(ctx, roomID, ClampLimit(limit))
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
