package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ephemera/internal/domain"
)

type PostgresMessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `id, room_id, username, user_id, body, kind, created_at`

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanMessage(row scanner) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	var kind string
	if err := row.Scan(&m.ID, &m.RoomID, &m.Username, &m.UserID, &m.Body, &kind, &m.CreatedAt); err != nil {
		return domain.ChatMessage{}, err
	}
	m.Kind = domain.MessageKind(kind)
	return m, nil
}

func insertMessage(ctx context.Context, q queryRower, m *domain.ChatMessage) error {
	const ins = `INSERT INTO messages (room_id, username, user_id, body, kind) VALUES ($1,$2,$3,$4,$5) RETURNING ` + messageColumns
	out, err := scanMessage(q.QueryRow(ctx, ins, m.RoomID, m.Username, m.UserID, m.Body, string(m.Kind)))
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func (r *PostgresMessageRepository) Append(ctx context.Context, m *domain.ChatMessage) error {
	return insertMessage(ctx, r.db.Pool, m)
}

// ListRecent returns the latest limit messages in ascending creation order.
func (r *PostgresMessageRepository) ListRecent(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	const q = `SELECT ` + messageColumns + ` FROM (
SELECT ` + messageColumns + ` FROM messages WHERE room_id=$1 ORDER BY created_at DESC LIMIT $2
) recent ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
