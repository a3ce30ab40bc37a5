package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

type PostgresRoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) RoomRepository {
	return &PostgresRoomRepository{db: db}
}

const roomColumns = `id, name, password_hash, kind, created_at, expires_at, active`

func scanRoom(row scanner) (domain.Room, error) {
	var r domain.Room
	var kind string
	if err := row.Scan(&r.ID, &r.Name, &r.PasswordHash, &kind, &r.CreatedAt, &r.ExpiresAt, &r.Active); err != nil {
		return domain.Room{}, err
	}
	r.Kind = domain.RoomKind(kind)
	return r, nil
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	const q = `INSERT INTO rooms (name, password_hash, kind, expires_at) VALUES ($1,$2,$3,$4) RETURNING ` + roomColumns
	created, err := scanRoom(r.db.Pool.QueryRow(ctx, q, room.Name, room.PasswordHash, string(room.Kind), room.ExpiresAt))
	if err != nil {
		return err
	}
	*room = created
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id=$1`
	room, err := scanRoom(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.Room{}, notFound(err)
	}
	return room, nil
}

func (r *PostgresRoomRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE rooms SET active=false WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ExpireDue deactivates every active room whose expiry has passed and
// returns their ids.
func (r *PostgresRoomRepository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const q = `UPDATE rooms SET active=false WHERE active AND expires_at <= $1 RETURNING id`
	rows, err := r.db.Pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
