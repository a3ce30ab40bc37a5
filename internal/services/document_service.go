package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
	"ephemera/internal/repository"
	apperrors "ephemera/pkg/errors"
)

type DocumentService struct {
	rooms *RoomService
	repo  repository.DocumentRepository
	log   *zap.Logger
}

func NewDocumentService(rooms *RoomService, repo repository.DocumentRepository, log *zap.Logger) *DocumentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{rooms: rooms, repo: repo, log: log}
}

func (s *DocumentService) Get(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return domain.Document{}, err
	}
	return s.repo.GetByName(ctx, roomID, name)
}

type CreateDocumentInput struct {
	RoomID    uuid.UUID
	Name      string
	Language  string
	Content   string
	CreatedBy string
}

// Create is idempotent on (room, name): a second creator receives the row
// that won, with created false.
func (s *DocumentService) Create(ctx context.Context, in CreateDocumentInput) (domain.Document, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = domain.MainDocument
	}
	if in.Language == "" {
		in.Language = domain.DefaultLanguage
	}
	if in.CreatedBy == "" {
		return domain.Document{}, false, apperrors.ErrInvalidInput
	}
	if _, err := s.rooms.Accessible(ctx, in.RoomID); err != nil {
		return domain.Document{}, false, err
	}
	d, created, err := s.repo.Create(ctx, domain.Document{
		RoomID:    in.RoomID,
		Name:      in.Name,
		Language:  in.Language,
		Content:   in.Content,
		CreatedBy: in.CreatedBy,
	})
	if err != nil {
		return domain.Document{}, false, err
	}
	if created {
		s.log.Info("document created", zap.String("room_id", in.RoomID.String()), zap.String("name", in.Name))
	}
	return d, created, nil
}

// Update applies patch to a document of roomID. Last write wins.
func (s *DocumentService) Update(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	d, err := s.owned(ctx, roomID, id)
	if err != nil {
		return domain.Document{}, err
	}
	if patch.Empty() {
		return d, nil
	}
	return s.repo.Update(ctx, id, patch)
}

func (s *DocumentService) Delete(ctx context.Context, roomID, id uuid.UUID) error {
	if _, err := s.owned(ctx, roomID, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

func (s *DocumentService) owned(ctx context.Context, roomID, id uuid.UUID) (domain.Document, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if d.RoomID != roomID {
		return domain.Document{}, apperrors.ErrForbidden
	}
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return domain.Document{}, err
	}
	if !d.Active {
		return domain.Document{}, apperrors.ErrGone
	}
	return d, nil
}
