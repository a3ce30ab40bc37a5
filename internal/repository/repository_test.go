package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var participantCols = []string{"id", "room_id", "username", "user_id", "joined_at", "last_seen", "is_online"}

func participantRow(rows *pgxmock.Rows, id int64, roomID uuid.UUID, username string, userID uuid.UUID, joined time.Time) *pgxmock.Rows {
	return rows.AddRow(id, roomID.String(), username, userID.String(), joined, joined, true)
}

func TestParticipantRepo_Join_Created(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, userID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO participants \(room_id, username, user_id\)`).
		WithArgs(roomID, "alice", userID).
		WillReturnRows(participantRow(pgxmock.NewRows(participantCols), 1, roomID, "alice", userID, now))
	mock.ExpectCommit()

	p, created, err := r.Join(context.Background(), roomID, "alice", userID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, userID, p.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepo_Join_SameUserRejoins(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, userID := uuid.New(), uuid.New()
	joined := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO participants`).
		WithArgs(roomID, "alice", userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM participants WHERE room_id=\$1 AND username=\$2 FOR UPDATE`).
		WithArgs(roomID, "alice").
		WillReturnRows(participantRow(pgxmock.NewRows(participantCols), 7, roomID, "alice", userID, joined))
	mock.ExpectQuery(`UPDATE participants SET is_online=true`).
		WithArgs(int64(7)).
		WillReturnRows(participantRow(pgxmock.NewRows(participantCols), 7, roomID, "alice", userID, joined))
	mock.ExpectCommit()

	p, created, err := r.Join(context.Background(), roomID, "alice", userID)
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, p.JoinedAt.Equal(joined))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepo_Join_UsernameTaken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, holder, newcomer := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO participants`).
		WithArgs(roomID, "alice", newcomer).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(roomID, "alice").
		WillReturnRows(participantRow(pgxmock.NewRows(participantCols), 3, roomID, "alice", holder, time.Now()))
	mock.ExpectRollback()

	_, _, err := r.Join(context.Background(), roomID, "alice", newcomer)
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepo_List_Ordered(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID := uuid.New()
	t0 := time.Now()
	rows := pgxmock.NewRows(participantCols)
	participantRow(rows, 1, roomID, "alice", uuid.New(), t0)
	participantRow(rows, 2, roomID, "bob", uuid.New(), t0.Add(time.Second))

	mock.ExpectQuery(`ORDER BY joined_at ASC, id ASC`).WithArgs(roomID).WillReturnRows(rows)

	ps, err := r.List(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, "alice", ps[0].Username)
}

func TestParticipantRepo_SetPresence_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(`UPDATE participants SET is_online=\$4`).
		WithArgs(roomID, "ghost", userID, false).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.SetPresence(context.Background(), roomID, "ghost", userID, false)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepo_Exists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, userID := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM participants WHERE room_id=\$1 AND username=\$2 AND user_id=\$3\)`).
		WithArgs(roomID, "bob", userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := r.Exists(context.Background(), roomID, "bob", userID)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func kickRoster(roomID, aliceID, bobID uuid.UUID) *pgxmock.Rows {
	t0 := time.Now().Add(-time.Minute)
	rows := pgxmock.NewRows(participantCols)
	participantRow(rows, 1, roomID, "alice", aliceID, t0)
	participantRow(rows, 2, roomID, "bob", bobID, t0.Add(time.Second))
	return rows
}

func TestParticipantRepo_Kick_ByAdmin(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, aliceID, bobID := uuid.New(), uuid.New(), uuid.New()
	notice := "bob has been removed from the room by alice"

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(roomID).WillReturnRows(kickRoster(roomID, aliceID, bobID))
	mock.ExpectExec(`DELETE FROM participants WHERE id=\$1`).
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(roomID, domain.SystemUsername, domain.SystemUserID, notice, "system").
		WillReturnRows(pgxmock.NewRows([]string{"id", "room_id", "username", "user_id", "body", "kind", "created_at"}).
			AddRow(uuid.NewString(), roomID.String(), "system", uuid.Nil.String(), notice, "system", time.Now()))
	mock.ExpectCommit()

	msg, err := r.Kick(context.Background(), roomID, "bob", "alice", aliceID)
	require.NoError(t, err)
	require.Equal(t, notice, msg.Body)
	require.Equal(t, domain.MessageKindSystem, msg.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepo_Kick_Forbidden(t *testing.T) {
	cases := []struct {
		name      string
		target    string
		requester string
		spoofID   bool
	}{
		{"non admin", "alice", "bob", false},
		{"self kick", "alice", "alice", false},
		{"admin name with wrong user id", "bob", "alice", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newDB(t)
			defer mock.Close()
			r := NewParticipantRepository(db)

			roomID, aliceID, bobID := uuid.New(), uuid.New(), uuid.New()
			ids := map[string]uuid.UUID{"alice": aliceID, "bob": bobID}
			requesterID := ids[tc.requester]
			if tc.spoofID {
				requesterID = uuid.New()
			}

			mock.ExpectBegin()
			mock.ExpectQuery(`FOR UPDATE`).WithArgs(roomID).WillReturnRows(kickRoster(roomID, aliceID, bobID))
			mock.ExpectRollback()

			_, err := r.Kick(context.Background(), roomID, tc.target, tc.requester, requesterID)
			require.ErrorIs(t, err, apperrors.ErrForbidden)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestParticipantRepo_Remove_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewParticipantRepository(db)

	roomID, userID := uuid.New(), uuid.New()
	mock.ExpectExec(`DELETE FROM participants WHERE room_id=\$1`).
		WithArgs(roomID, "bob", userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := r.Remove(context.Background(), roomID, "bob", userID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

var documentCols = []string{"id", "room_id", "name", "language", "content", "created_by", "last_edited_by", "created_at", "updated_at", "active"}

func TestDocumentRepo_Create_LoserGetsExistingRow(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepository(db)

	roomID, docID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(roomID, "main", "plaintext", "", "bob").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM documents WHERE room_id=\$1 AND name=\$2 AND active`).
		WithArgs(roomID, "main").
		WillReturnRows(pgxmock.NewRows(documentCols).
			AddRow(docID.String(), roomID.String(), "main", "go", "package main", "alice", "alice", now, now, true))

	d, created, err := r.Create(context.Background(), domain.Document{
		RoomID: roomID, Name: "main", Language: "plaintext", CreatedBy: "bob",
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, docID, d.ID)
	require.Equal(t, "alice", d.CreatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepository(db)

	roomID, docID := uuid.New(), uuid.New()
	now := time.Now()
	content, editor := "print(2)", "alice"

	mock.ExpectQuery(`UPDATE documents SET`).
		WithArgs(docID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(documentCols).
			AddRow(docID.String(), roomID.String(), "main", "python", content, "alice", editor, now, now, true))

	d, err := r.Update(context.Background(), docID, domain.DocumentPatch{Content: &content, LastEditedBy: &editor})
	require.NoError(t, err)
	require.Equal(t, "print(2)", d.Content)
}

func TestDocumentRepo_Update_Inactive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDocumentRepository(db)

	docID := uuid.New()
	mock.ExpectQuery(`UPDATE documents SET`).
		WithArgs(docID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Update(context.Background(), docID, domain.DocumentPatch{})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRoomRepository(db)

	id := uuid.New()
	mock.ExpectQuery(`FROM rooms WHERE id=\$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepo_ExpireDue(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRoomRepository(db)

	a, b := uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery(`UPDATE rooms SET active=false WHERE active AND expires_at <= \$1 RETURNING id`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a.String()).AddRow(b.String()))

	ids, err := r.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestMessageRepo_ListRecent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewMessageRepository(db)

	roomID := uuid.New()
	t0 := time.Now()
	cols := []string{"id", "room_id", "username", "user_id", "body", "kind", "created_at"}
	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(roomID, 50).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.NewString(), roomID.String(), "alice", uuid.NewString(), "hi", "text", t0).
			AddRow(uuid.NewString(), roomID.String(), "bob", uuid.NewString(), "yo", "text", t0.Add(time.Second)))

	ms, err := r.ListRecent(context.Background(), roomID, 50)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.Equal(t, "hi", ms[0].Body)
	require.Equal(t, domain.MessageKindText, ms[1].Kind)
}
