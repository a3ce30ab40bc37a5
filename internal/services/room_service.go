package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ephemera/config"
	"ephemera/internal/domain"
	"ephemera/internal/metrics"
	"ephemera/internal/repository"
	apperrors "ephemera/pkg/errors"
)

// RoomCache is the read-through cache in front of the rooms table.
type RoomCache interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Room, bool, error)
	Set(ctx context.Context, room domain.Room) error
	Invalidate(ctx context.Context, ids ...uuid.UUID) error
}

type RoomService struct {
	repo       repository.RoomRepository
	docs       repository.DocumentRepository
	cache      RoomCache
	log        *zap.Logger
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

func NewRoomService(repo repository.RoomRepository, docs repository.DocumentRepository, cache RoomCache, cfg *config.Config, log *zap.Logger) *RoomService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomService{
		repo:       repo,
		docs:       docs,
		cache:      cache,
		log:        log,
		defaultTTL: cfg.DefaultRoomTTL,
		maxTTL:     cfg.MaxRoomTTL,
		now:        time.Now,
	}
}

type CreateRoomInput struct {
	Name     string
	Password string
	Kind     domain.RoomKind
	TTL      time.Duration
}

func (s *RoomService) Create(ctx context.Context, in CreateRoomInput) (domain.Room, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Password == "" {
		return domain.Room{}, apperrors.ErrInvalidInput
	}
	if in.Kind == "" {
		in.Kind = domain.RoomKindMixed
	}
	if !in.Kind.Valid() {
		return domain.Room{}, apperrors.ErrInvalidInput
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return domain.Room{}, err
	}
	room := domain.Room{
		Name:         in.Name,
		PasswordHash: hash,
		Kind:         in.Kind,
		ExpiresAt:    s.now().Add(ttl).UTC(),
		Active:       true,
	}
	if err := s.repo.Create(ctx, &room); err != nil {
		return domain.Room{}, err
	}
	metrics.RoomsCreated.Inc()
	s.log.Info("room created", zap.String("room_id", room.ID.String()), zap.Duration("ttl", ttl))
	return room, nil
}

// Get returns the room whatever its state. Absent rooms are ErrNotFound.
func (s *RoomService) Get(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	if s.cache != nil {
		room, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("room cache read failed", zap.String("room_id", id.String()), zap.Error(err))
		} else if ok {
			return room, nil
		}
	}
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if s.cache != nil && room.Accessible(s.now()) {
		if err := s.cache.Set(ctx, room); err != nil {
			s.log.Warn("room cache write failed", zap.String("room_id", id.String()), zap.Error(err))
		}
	}
	return room, nil
}

// Accessible returns the room only while it is active and unexpired;
// a room that exists but is not is ErrGone.
func (s *RoomService) Accessible(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	room, err := s.Get(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.Accessible(s.now()) {
		return room, apperrors.ErrGone
	}
	return room, nil
}

// Verify checks the shared room password.
func (s *RoomService) Verify(ctx context.Context, id uuid.UUID, password string) (domain.Room, error) {
	room, err := s.Accessible(ctx, id)
	if err != nil {
		return room, err
	}
	if err := comparePassword(room.PasswordHash, password); err != nil {
		return domain.Room{}, apperrors.ErrUnauthorized
	}
	return room, nil
}

func (s *RoomService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// ExpireDue deactivates rooms past expiry and soft-deletes their documents.
func (s *RoomService) ExpireDue(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.docs.DeactivateForRooms(ctx, ids)
	if err != nil {
		return ids, err
	}
	s.invalidate(ctx, ids...)
	s.log.Info("rooms expired", zap.Int("rooms", len(ids)), zap.Int64("documents", docs))
	return ids, nil
}

func (s *RoomService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.log.Warn("room cache invalidation failed", zap.Error(err))
	}
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
