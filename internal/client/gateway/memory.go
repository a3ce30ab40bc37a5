package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ephemera/internal/domain"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

type memRoom struct {
	room     domain.Room
	password string
	roster   []domain.Participant
	messages []domain.ChatMessage
}

// Memory is an in-process Gateway that enforces the same rules as the REST
// gateway. It backs offline runs of roomctl and the session engine tests.
type Memory struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*memRoom
	docs     map[uuid.UUID]domain.Document
	writes   map[uuid.UUID]int
	seq      int64
	now      func() time.Time
	retry    RetryPolicy
	notify   func(roomID uuid.UUID, m events.Message)
	failures []error
}

func NewMemory() *Memory {
	return &Memory{
		rooms:  make(map[uuid.UUID]*memRoom),
		docs:   make(map[uuid.UUID]domain.Document),
		writes: make(map[uuid.UUID]int),
		now:    time.Now,
		retry:  RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

// SetClock replaces the clock used for timestamps and expiry checks.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetNotifier receives the roster and chat pushes a live gateway would
// publish on the room topic.
func (m *Memory) SetNotifier(fn func(roomID uuid.UUID, msg events.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

// FailNext makes the next calls fail with errs, one per call, before retry.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// CreateRoom registers a room that expires after ttl.
func (m *Memory) CreateRoom(name, password string, kind domain.RoomKind, ttl time.Duration) domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	room := domain.Room{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Active:    true,
	}
	m.rooms[room.ID] = &memRoom{room: room, password: password}
	return room
}

// Deactivate closes a room early.
func (m *Memory) Deactivate(roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		r.room.Active = false
	}
}

// DocumentWrites returns how many updates reached the document.
func (m *Memory) DocumentWrites(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[id]
}

func (m *Memory) UsePass(uuid.UUID, string) {}

func (m *Memory) GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := m.run(ctx, func() error {
		r, ok := m.rooms[roomID]
		if !ok {
			return apperrors.New(apperrors.CodeNotFound, "room not found")
		}
		room = r.room
		if !room.Accessible(m.now()) {
			return apperrors.New(apperrors.CodeGone, "room has expired")
		}
		return nil
	})
	return room, err
}

func (m *Memory) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	var (
		result JoinResult
		push   events.Message
	)
	err := m.run(ctx, func() error {
		r, err := m.accessible(req.RoomID)
		if err != nil {
			return err
		}
		if r.password != req.Password {
			return apperrors.New(apperrors.CodeUnauthorized, "wrong room password")
		}
		result.Room = r.room

		username := strings.TrimSpace(req.Username)
		if username == "" {
			result.RequiresUsername = true
			return nil
		}
		if username == domain.SystemUsername {
			return apperrors.New(apperrors.CodeUsernameExists, "username is reserved")
		}
		userID := req.UserID
		if userID == uuid.Nil {
			userID = uuid.New()
		}

		now := m.now()
		for i, p := range r.roster {
			if p.Username != username {
				continue
			}
			if p.UserID != userID {
				return apperrors.New(apperrors.CodeUsernameExists, "username already taken in this room")
			}
			r.roster[i].IsOnline = true
			r.roster[i].LastSeen = now
			result.Participant = r.roster[i]
			push = events.Roster{Action: events.RosterPresence, Username: username}
			return nil
		}

		m.seq++
		p := domain.Participant{
			ID:       m.seq,
			RoomID:   req.RoomID,
			Username: username,
			UserID:   userID,
			JoinedAt: now,
			LastSeen: now,
			IsOnline: true,
		}
		r.roster = append(r.roster, p)
		result.Participant = p
		push = events.Roster{Action: events.RosterJoined, Username: username}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	if !result.RequiresUsername {
		result.Token = "memory:" + result.Participant.UserID.String()
		m.publish(req.RoomID, push)
	}
	return result, nil
}

func (m *Memory) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := m.run(ctx, func() error {
		r, err := m.accessible(roomID)
		if err != nil {
			return err
		}
		out = domain.SortRoster(r.roster)
		return nil
	})
	return out, err
}

func (m *Memory) SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	var out domain.Participant
	err := m.run(ctx, func() error {
		r, err := m.accessible(roomID)
		if err != nil {
			return err
		}
		for i, p := range r.roster {
			if p.Username == username && p.UserID == userID {
				r.roster[i].IsOnline = online
				r.roster[i].LastSeen = m.now()
				out = r.roster[i]
				return nil
			}
		}
		return apperrors.New(apperrors.CodeNotFound, "participant not found")
	})
	if err == nil {
		m.publish(roomID, events.Roster{Action: events.RosterPresence, Username: username})
	}
	return out, err
}

func (m *Memory) Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error) {
	var notice domain.ChatMessage
	err := m.run(ctx, func() error {
		if target == admin {
			return apperrors.New(apperrors.CodeForbidden, "cannot kick yourself")
		}
		r, err := m.accessible(roomID)
		if err != nil {
			return err
		}
		roster := domain.SortRoster(r.roster)
		if !domain.CanKick(roster, admin, target) {
			return apperrors.New(apperrors.CodeForbidden, "only the room admin can kick")
		}
		if a, _ := domain.AdminOf(roster); a.UserID != adminUserID {
			return apperrors.New(apperrors.CodeForbidden, "only the room admin can kick")
		}
		idx := -1
		for i, p := range r.roster {
			if p.Username == target {
				idx = i
			}
		}
		if idx < 0 {
			return apperrors.New(apperrors.CodeNotFound, "participant not found")
		}
		r.roster = append(r.roster[:idx], r.roster[idx+1:]...)
		notice = m.appendLocked(r, domain.ChatMessage{
			RoomID:   roomID,
			Username: domain.SystemUsername,
			UserID:   domain.SystemUserID,
			Body:     domain.KickNotice(target, admin),
			Kind:     domain.MessageKindSystem,
		})
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	m.publish(roomID, events.Roster{Action: events.RosterKicked, Username: target, By: admin})
	m.publish(roomID, events.Chat{Message: notice})
	return notice, nil
}

func (m *Memory) Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	err := m.run(ctx, func() error {
		r, ok := m.rooms[roomID]
		if !ok {
			return apperrors.New(apperrors.CodeNotFound, "room not found")
		}
		for i, p := range r.roster {
			if p.Username == username && p.UserID == userID {
				r.roster = append(r.roster[:i], r.roster[i+1:]...)
				return nil
			}
		}
		return apperrors.New(apperrors.CodeNotFound, "participant not found")
	})
	if err == nil {
		m.publish(roomID, events.Roster{Action: events.RosterLeft, Username: username})
	}
	return err
}

func (m *Memory) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := m.run(ctx, func() error {
		r, err := m.accessible(roomID)
		if err != nil {
			return err
		}
		msgs := r.messages
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		out = append([]domain.ChatMessage(nil), msgs...)
		return nil
	})
	return out, err
}

func (m *Memory) AppendMessage(ctx context.Context, req AppendRequest) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := m.run(ctx, func() error {
		kind := req.Kind
		if kind == "" {
			kind = domain.MessageKindText
		}
		if kind == domain.MessageKindSystem {
			return apperrors.New(apperrors.CodeForbidden, "system messages are server only")
		}
		if !kind.Valid() || req.Body == "" {
			return apperrors.New(apperrors.CodeInvalidRequest, "invalid message")
		}
		r, err := m.accessible(req.RoomID)
		if err != nil {
			return err
		}
		if p, ok := domain.Find(r.roster, req.Username); !ok || p.UserID != req.UserID {
			return apperrors.New(apperrors.CodeForbidden, "not a participant of this room")
		}
		msg = m.appendLocked(r, domain.ChatMessage{
			RoomID:   req.RoomID,
			Username: req.Username,
			UserID:   req.UserID,
			Body:     req.Body,
			Kind:     kind,
		})
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	m.publish(req.RoomID, events.Chat{Message: msg})
	return msg, nil
}

func (m *Memory) GetDocument(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	var doc domain.Document
	err := m.run(ctx, func() error {
		if _, err := m.accessible(roomID); err != nil {
			return err
		}
		d, ok := m.findDocLocked(roomID, name)
		if !ok {
			return apperrors.New(apperrors.CodeNotFound, "document not found")
		}
		doc = d
		return nil
	})
	return doc, err
}

// CreateDocument is idempotent on (room, name): the existing row wins.
func (m *Memory) CreateDocument(ctx context.Context, req CreateDocumentRequest) (domain.Document, error) {
	var doc domain.Document
	err := m.run(ctx, func() error {
		if _, err := m.accessible(req.RoomID); err != nil {
			return err
		}
		name := req.Name
		if name == "" {
			name = domain.MainDocument
		}
		if d, ok := m.findDocLocked(req.RoomID, name); ok {
			doc = d
			return nil
		}
		lang := req.Language
		if lang == "" {
			lang = domain.DefaultLanguage
		}
		now := m.now()
		doc = domain.Document{
			ID:           uuid.New(),
			RoomID:       req.RoomID,
			Name:         name,
			Language:     lang,
			Content:      req.Content,
			CreatedBy:    req.CreatedBy,
			LastEditedBy: req.CreatedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
			Active:       true,
		}
		m.docs[doc.ID] = doc
		return nil
	})
	return doc, err
}

func (m *Memory) UpdateDocument(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	var doc domain.Document
	err := m.run(ctx, func() error {
		if _, err := m.accessible(roomID); err != nil {
			return err
		}
		d, ok := m.docs[id]
		if !ok {
			return apperrors.New(apperrors.CodeNotFound, "document not found")
		}
		if d.RoomID != roomID {
			return apperrors.New(apperrors.CodeForbidden, "document belongs to another room")
		}
		if !d.Active {
			return apperrors.New(apperrors.CodeGone, "document was deleted")
		}
		d = patch.Apply(d)
		now := m.now()
		if !now.After(d.UpdatedAt) {
			now = d.UpdatedAt.Add(time.Microsecond)
		}
		d.UpdatedAt = now
		m.docs[id] = d
		m.writes[id]++
		doc = d
		return nil
	})
	return doc, err
}

// run executes op under the lock with the same bounded retry as HTTPGateway.
// Injected failures are consumed before op runs.
func (m *Memory) run(ctx context.Context, op func() error) error {
	return m.retry.do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.failures) > 0 {
			err := m.failures[0]
			m.failures = m.failures[1:]
			return err
		}
		return op()
	})
}

func (m *Memory) accessible(roomID uuid.UUID) (*memRoom, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "room not found")
	}
	if !r.room.Accessible(m.now()) {
		return nil, apperrors.New(apperrors.CodeGone, "room has expired")
	}
	return r, nil
}

func (m *Memory) findDocLocked(roomID uuid.UUID, name string) (domain.Document, bool) {
	for _, d := range m.docs {
		if d.RoomID == roomID && d.Name == name && d.Active {
			return d, true
		}
	}
	return domain.Document{}, false
}

func (m *Memory) appendLocked(r *memRoom, msg domain.ChatMessage) domain.ChatMessage {
	msg.ID = uuid.New()
	msg.CreatedAt = m.now()
	r.messages = append(r.messages, msg)
	return msg
}

func (m *Memory) publish(roomID uuid.UUID, msg events.Message) {
	m.mu.Lock()
	fn := m.notify
	m.mu.Unlock()
	if fn != nil && msg != nil {
		fn(roomID, msg)
	}
}

var _ Gateway = (*Memory)(nil)
