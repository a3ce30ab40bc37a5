// Package sessionstore keeps the client-local Session record in a sqlite file
// so a restarted client can rejoin its room without registering again.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	room_id    TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
	role       TEXT NOT NULL DEFAULT '',
	joined_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	token      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
	log *zap.Logger
}

// Open creates the file (and its directory) if needed. ":memory:" keeps the
// store in process memory.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create session store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	log.Debug("session store opened", zap.String("path", path))
	return &Store{db: db, now: time.Now, log: log}, nil
}

// SetClock replaces the clock used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Save upserts the session of its room.
func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	if sess.RoomID == uuid.Nil || sess.Username == "" {
		return apperrors.New(apperrors.CodeInvalidRequest, "session needs a room and a username")
	}
	if sess.Role == "" {
		sess.Role = domain.RoleFor(sess.IsAdmin)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (room_id, username, user_id, is_admin, role, joined_at, expires_at, token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			username = excluded.username,
			user_id = excluded.user_id,
			is_admin = excluded.is_admin,
			role = excluded.role,
			joined_at = excluded.joined_at,
			expires_at = excluded.expires_at,
			token = excluded.token`,
		sess.RoomID.String(), sess.Username, sess.UserID.String(), sess.IsAdmin, sess.Role,
		sess.JoinedAt.UnixNano(), sess.ExpiresAt.UnixNano(), sess.Token,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the stored session of a room. Expired rows are deleted and
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, roomID uuid.UUID) (domain.Session, error) {
	var (
		sess      domain.Session
		userID    string
		joinedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, user_id, is_admin, role, joined_at, expires_at, token
		FROM sessions WHERE room_id = ?`, roomID.String(),
	).Scan(&sess.Username, &userID, &sess.IsAdmin, &sess.Role, &joinedAt, &expiresAt, &sess.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	sess.RoomID = roomID
	sess.JoinedAt = time.Unix(0, joinedAt).UTC()
	sess.ExpiresAt = time.Unix(0, expiresAt).UTC()
	if sess.UserID, err = uuid.Parse(userID); err != nil {
		s.log.Warn("dropping session with a malformed user id", zap.String("room_id", roomID.String()))
		_ = s.Delete(ctx, roomID)
		return domain.Session{}, apperrors.ErrNotFound
	}
	if sess.Expired(s.now()) {
		if err := s.Delete(ctx, roomID); err != nil {
			return domain.Session{}, err
		}
		return domain.Session{}, apperrors.ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, roomID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE room_id = ?`, roomID.String()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Purge removes every expired session and returns how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
