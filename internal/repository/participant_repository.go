package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

type PostgresParticipantRepository struct {
	db *DB
}

func NewParticipantRepository(db *DB) ParticipantRepository {
	return &PostgresParticipantRepository{db: db}
}

const participantColumns = `id, room_id, username, user_id, joined_at, last_seen, is_online`

func scanParticipant(row scanner) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.RoomID, &p.Username, &p.UserID, &p.JoinedAt, &p.LastSeen, &p.IsOnline)
	return p, err
}

func collectParticipants(rows pgx.Rows) ([]domain.Participant, error) {
	defer rows.Close()
	out := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Join registers username in the room. A row already held by the same user id
// is a rejoin: it goes back online and keeps its joined_at. A row held by a
// different user id is a conflict. The bool reports whether a row was created.
func (r *PostgresParticipantRepository) Join(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (p domain.Participant, created bool, err error) {
	const ins = `INSERT INTO participants (room_id, username, user_id) VALUES ($1,$2,$3)
ON CONFLICT (room_id, username) DO NOTHING RETURNING ` + participantColumns
	const sel = `SELECT ` + participantColumns + ` FROM participants WHERE room_id=$1 AND username=$2 FOR UPDATE`
	const upd = `UPDATE participants SET is_online=true, last_seen=clock_timestamp() WHERE id=$1 RETURNING ` + participantColumns

	err = WithTx(ctx, r.db, func(tx pgx.Tx) error {
		p, err = scanParticipant(tx.QueryRow(ctx, ins, roomID, username, userID))
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		existing, err := scanParticipant(tx.QueryRow(ctx, sel, roomID, username))
		if err != nil {
			return notFound(err)
		}
		if existing.UserID != userID {
			return apperrors.ErrConflict
		}
		p, err = scanParticipant(tx.QueryRow(ctx, upd, existing.ID))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Participant{}, false, apperrors.ErrConflict
		}
		return domain.Participant{}, false, err
	}
	return p, created, nil
}

// List returns the roster in election order: joined_at, then insertion order.
func (r *PostgresParticipantRepository) List(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	const q = `SELECT ` + participantColumns + ` FROM participants WHERE room_id=$1 ORDER BY joined_at ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

// Exists reports whether username still holds a row in the room under userID.
func (r *PostgresParticipantRepository) Exists(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM participants WHERE room_id=$1 AND username=$2 AND user_id=$3)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, roomID, username, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PostgresParticipantRepository) SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	const q = `UPDATE participants SET is_online=$4, last_seen=clock_timestamp()
WHERE room_id=$1 AND username=$2 AND user_id=$3 RETURNING ` + participantColumns
	p, err := scanParticipant(r.db.Pool.QueryRow(ctx, q, roomID, username, userID, online))
	if err != nil {
		return domain.Participant{}, notFound(err)
	}
	return p, nil
}

// Kick removes target on behalf of admin and appends the removal notice, in
// one transaction holding the roster rows.
func (r *PostgresParticipantRepository) Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (msg domain.ChatMessage, err error) {
	const lock = `SELECT ` + participantColumns + ` FROM participants WHERE room_id=$1 ORDER BY joined_at ASC, id ASC FOR UPDATE`
	const del = `DELETE FROM participants WHERE id=$1`

	err = WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lock, roomID)
		if err != nil {
			return err
		}
		roster, err := collectParticipants(rows)
		if err != nil {
			return err
		}
		requester, ok := domain.Find(roster, admin)
		if !ok || requester.UserID != adminUserID || !domain.CanKick(roster, admin, target) {
			return apperrors.ErrForbidden
		}
		victim, ok := domain.Find(roster, target)
		if !ok {
			return apperrors.ErrNotFound
		}
		if _, err := tx.Exec(ctx, del, victim.ID); err != nil {
			return err
		}
		msg = domain.ChatMessage{
			RoomID:   roomID,
			Username: domain.SystemUsername,
			UserID:   domain.SystemUserID,
			Body:     domain.KickNotice(target, admin),
			Kind:     domain.MessageKindSystem,
		}
		return insertMessage(ctx, tx, &msg)
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// Remove is the leave cleanup: the participant deletes its own row.
func (r *PostgresParticipantRepository) Remove(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM participants WHERE room_id=$1 AND username=$2 AND user_id=$3`, roomID, username, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
