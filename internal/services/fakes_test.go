package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"ephemera/config"
	"ephemera/internal/domain"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]domain.Room
}

func newFakeRooms() *fakeRooms { return &fakeRooms{rooms: map[uuid.UUID]domain.Room{}} }

func (f *fakeRooms) Create(_ context.Context, r *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	f.rooms[r.ID] = *r
	return nil
}

func (f *fakeRooms) GetByID(_ context.Context, id uuid.UUID) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, apperrors.ErrNotFound
	}
	return r, nil
}

func (f *fakeRooms) Deactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.Active = false
	f.rooms[id] = r
	return nil
}

func (f *fakeRooms) ExpireDue(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, r := range f.rooms {
		if r.Active && !now.Before(r.ExpiresAt) {
			r.Active = false
			f.rooms[id] = r
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeParticipants struct {
	mu     sync.Mutex
	seq    int64
	clock  time.Time
	rows   []domain.Participant
	notice []domain.ChatMessage
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{clock: time.Now()}
}

func (f *fakeParticipants) Join(_ context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (domain.Participant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.rows {
		if p.RoomID == roomID && p.Username == username {
			if p.UserID != userID {
				return domain.Participant{}, false, apperrors.ErrConflict
			}
			f.rows[i].IsOnline = true
			return f.rows[i], false, nil
		}
	}
	f.seq++
	f.clock = f.clock.Add(time.Millisecond)
	p := domain.Participant{ID: f.seq, RoomID: roomID, Username: username, UserID: userID, JoinedAt: f.clock, LastSeen: f.clock, IsOnline: true}
	f.rows = append(f.rows, p)
	return p, true, nil
}

func (f *fakeParticipants) roster(roomID uuid.UUID) []domain.Participant {
	var out []domain.Participant
	for _, p := range f.rows {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	return domain.SortRoster(out)
}

func (f *fakeParticipants) List(_ context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster(roomID), nil
}

func (f *fakeParticipants) Exists(_ context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := domain.Find(f.roster(roomID), username)
	return ok && p.UserID == userID, nil
}

func (f *fakeParticipants) SetPresence(_ context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.rows {
		if p.RoomID == roomID && p.Username == username && p.UserID == userID {
			f.rows[i].IsOnline = online
			return f.rows[i], nil
		}
	}
	return domain.Participant{}, apperrors.ErrNotFound
}

func (f *fakeParticipants) Kick(_ context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roster := f.roster(roomID)
	requester, ok := domain.Find(roster, admin)
	if !ok || requester.UserID != adminUserID || !domain.CanKick(roster, admin, target) {
		return domain.ChatMessage{}, apperrors.ErrForbidden
	}
	if _, ok := domain.Find(roster, target); !ok {
		return domain.ChatMessage{}, apperrors.ErrNotFound
	}
	f.remove(roomID, target)
	m := domain.ChatMessage{
		ID: uuid.New(), RoomID: roomID, Username: domain.SystemUsername, UserID: domain.SystemUserID,
		Body: domain.KickNotice(target, admin), Kind: domain.MessageKindSystem, CreatedAt: time.Now(),
	}
	f.notice = append(f.notice, m)
	return m, nil
}

func (f *fakeParticipants) remove(roomID uuid.UUID, username string) bool {
	for i, p := range f.rows {
		if p.RoomID == roomID && p.Username == username {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeParticipants) Remove(_ context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := domain.Find(f.roster(roomID), username); !ok || p.UserID != userID {
		return apperrors.ErrNotFound
	}
	f.remove(roomID, username)
	return nil
}

type fakeMessages struct {
	mu   sync.Mutex
	rows []domain.ChatMessage
}

func (f *fakeMessages) Append(_ context.Context, m *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMessages) ListRecent(_ context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range f.rows {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeDocuments struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Document
}

func newFakeDocuments() *fakeDocuments { return &fakeDocuments{rows: map[uuid.UUID]domain.Document{}} }

func (f *fakeDocuments) GetByName(_ context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.rows {
		if d.RoomID == roomID && d.Name == name && d.Active {
			return d, nil
		}
	}
	return domain.Document{}, apperrors.ErrNotFound
}

func (f *fakeDocuments) GetByID(_ context.Context, id uuid.UUID) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return domain.Document{}, apperrors.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocuments) Create(ctx context.Context, d domain.Document) (domain.Document, bool, error) {
	if existing, err := f.GetByName(ctx, d.RoomID, d.Name); err == nil {
		return existing, false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = uuid.New()
	d.LastEditedBy = d.CreatedBy
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	d.Active = true
	f.rows[d.ID] = d
	return d, true, nil
}

func (f *fakeDocuments) Update(_ context.Context, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || !d.Active {
		return domain.Document{}, apperrors.ErrNotFound
	}
	d = patch.Apply(d)
	d.UpdatedAt = time.Now()
	f.rows[id] = d
	return d, nil
}

func (f *fakeDocuments) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || !d.Active {
		return apperrors.ErrNotFound
	}
	d.Active = false
	f.rows[id] = d
	return nil
}

func (f *fakeDocuments) DeactivateForRooms(_ context.Context, roomIDs []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, d := range f.rows {
		for _, r := range roomIDs {
			if d.RoomID == r && d.Active {
				d.Active = false
				f.rows[id] = d
				n++
			}
		}
	}
	return n, nil
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishRoom(ctx context.Context, roomID uuid.UUID, msg events.Message) error {
	args := m.Called(ctx, roomID, msg)
	return args.Error(0)
}

type fixture struct {
	rooms        *fakeRooms
	participants *fakeParticipants
	messages     *fakeMessages
	documents    *fakeDocuments
	bus          *mockBus

	roomSvc        *RoomService
	authSvc        *AuthService
	participantSvc *ParticipantService
	messageSvc     *MessageService
	documentSvc    *DocumentService
}

func newFixture() *fixture {
	cfg := &config.Config{JWTSecret: "test-secret", DefaultRoomTTL: time.Hour, MaxRoomTTL: 24 * time.Hour}
	f := &fixture{
		rooms:        newFakeRooms(),
		participants: newFakeParticipants(),
		messages:     &fakeMessages{},
		documents:    newFakeDocuments(),
		bus:          &mockBus{},
	}
	f.bus.On("PublishRoom", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.roomSvc = NewRoomService(f.rooms, f.documents, nil, cfg, nil)
	f.authSvc = NewAuthService(cfg)
	f.participantSvc = NewParticipantService(f.roomSvc, f.authSvc, f.participants, f.bus, nil)
	f.messageSvc = NewMessageService(f.roomSvc, f.participants, f.messages, f.bus, nil)
	f.documentSvc = NewDocumentService(f.roomSvc, f.documents, nil)
	return f
}
