package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

type PostgresDocumentRepository struct {
	db *DB
}

func NewDocumentRepository(db *DB) DocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

const documentColumns = `id, room_id, name, language, content, created_by, last_edited_by, created_at, updated_at, active`

func scanDocument(row scanner) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.RoomID, &d.Name, &d.Language, &d.Content, &d.CreatedBy,
		&d.LastEditedBy, &d.CreatedAt, &d.UpdatedAt, &d.Active)
	return d, err
}

func (r *PostgresDocumentRepository) GetByName(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE room_id=$1 AND name=$2 AND active`
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, q, roomID, name))
	if err != nil {
		return domain.Document{}, notFound(err)
	}
	return d, nil
}

func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id=$1`
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.Document{}, notFound(err)
	}
	return d, nil
}

// Create inserts the document unless an active one with the same name already
// exists in the room, in which case the existing row is returned and the bool
// is false. Racing creators therefore all observe the same authoritative row.
func (r *PostgresDocumentRepository) Create(ctx context.Context, d domain.Document) (domain.Document, bool, error) {
	const ins = `INSERT INTO documents (room_id, name, language, content, created_by, last_edited_by)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (room_id, name) WHERE active DO NOTHING RETURNING ` + documentColumns
	created, err := scanDocument(r.db.Pool.QueryRow(ctx, ins, d.RoomID, d.Name, d.Language, d.Content, d.CreatedBy))
	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := r.GetByName(ctx, d.RoomID, d.Name)
		return existing, false, err
	default:
		return domain.Document{}, false, err
	}
}

// Update applies patch. updated_at strictly increases per row so the latest
// write is always the one with the greatest timestamp.
func (r *PostgresDocumentRepository) Update(ctx context.Context, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	const q = `UPDATE documents SET
    content        = COALESCE($2, content),
    language       = COALESCE($3, language),
    last_edited_by = COALESCE($4, last_edited_by),
    updated_at     = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
WHERE id=$1 AND active RETURNING ` + documentColumns
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, q, id, patch.Content, patch.Language, patch.LastEditedBy))
	if err != nil {
		return domain.Document{}, notFound(err)
	}
	return d, nil
}

func (r *PostgresDocumentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE documents SET active=false WHERE id=$1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *PostgresDocumentRepository) DeactivateForRooms(ctx context.Context, roomIDs []uuid.UUID) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Pool.Exec(ctx, `UPDATE documents SET active=false WHERE room_id = ANY($1) AND active`, roomIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
