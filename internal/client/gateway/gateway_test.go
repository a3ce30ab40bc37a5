package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemera/internal/domain"
	"ephemera/internal/events"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
)

var fastRetry = RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPGateway_RetriesTransientFailures(t *testing.T) {
	roomID := uuid.New()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, httpdto.NewErrorResponse("busy", "TRANSIENT"))
			return
		}
		writeJSON(w, http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromRoom(domain.Room{
			ID: roomID, Name: "r1", Kind: domain.RoomKindChat, Active: true,
		})))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	room, err := g.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, roomID, room.ID)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPGateway_GivesUpAfterAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadGateway, httpdto.NewErrorResponse("down", ""))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	_, err := g.GetRoom(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPGateway_AppendIsNotRepeatedAfterAnAnswer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, httpdto.NewErrorResponse("busy", "TRANSIENT"))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	_, err := g.AppendMessage(context.Background(), AppendRequest{
		RoomID: uuid.New(), Username: "alice", UserID: uuid.New(), Body: "hi", Kind: domain.MessageKindText,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPGateway_AppendRetriesRefusedDial(t *testing.T) {
	var dials int32
	client := &http.Client{Transport: &http.Transport{
		DialContext: func(context.Context, string, string) (net.Conn, error) {
			atomic.AddInt32(&dials, 1)
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		},
	}}

	g := NewHTTPGateway("http://gateway.invalid", WithHTTPClient(client), WithRetryPolicy(fastRetry))
	_, err := g.AppendMessage(context.Background(), AppendRequest{
		RoomID: uuid.New(), Username: "alice", UserID: uuid.New(), Body: "hi", Kind: domain.MessageKindText,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
	assert.EqualValues(t, 3, atomic.LoadInt32(&dials))
}

func TestHTTPGateway_DistinguishesNotFoundFromGone(t *testing.T) {
	gone := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/rooms/"+gone.String() {
			writeJSON(w, http.StatusGone, httpdto.NewErrorResponse("room has expired", "GONE"))
			return
		}
		writeJSON(w, http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	_, err := g.GetRoom(context.Background(), gone)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	_, err = g.GetRoom(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPGateway_JoinInstallsPass(t *testing.T) {
	roomID, userID := uuid.New(), uuid.New()
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req httpdto.JoinRoomRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			p := httpdto.FromParticipant(domain.Participant{RoomID: roomID, Username: req.Username, UserID: userID})
			writeJSON(w, http.StatusOK, httpdto.NewSuccessResponse(httpdto.JoinRoomResponse{
				Room:        httpdto.FromRoom(domain.Room{ID: roomID, Active: true}),
				Participant: &p,
				Token:       "pass-123",
			}))
		default:
			gotAuth.Store(r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, httpdto.NewSuccessResponse(httpdto.ParticipantListResponse{
				Participants: []httpdto.ParticipantResponse{httpdto.FromParticipant(domain.Participant{RoomID: roomID, Username: "alice", UserID: userID})},
			}))
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	res, err := g.Join(context.Background(), JoinRequest{RoomID: roomID, Password: "p@ss", Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "pass-123", res.Token)
	assert.Equal(t, "alice", res.Participant.Username)

	ps, err := g.ListParticipants(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Bearer pass-123", gotAuth.Load())
}

func TestHTTPGateway_ConflictIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusConflict, httpdto.NewErrorResponse("conflict", "USERNAME_EXISTS"))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, WithRetryPolicy(fastRetry))
	_, err := g.Join(context.Background(), JoinRequest{RoomID: uuid.New(), Password: "x", Username: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestMemory_KickScenario(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })
	var pushed []events.Message
	m.SetNotifier(func(_ uuid.UUID, msg events.Message) { pushed = append(pushed, msg) })

	room := m.CreateRoom("R1", "p@ss", domain.RoomKindMixed, time.Hour)
	alice, err := m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "p@ss", Username: "alice", UserID: uuid.New()})
	require.NoError(t, err)
	clock = clock.Add(time.Second)
	bob, err := m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "p@ss", Username: "bob", UserID: uuid.New()})
	require.NoError(t, err)

	notice, err := m.Kick(ctx, room.ID, "bob", "alice", alice.Participant.UserID)
	require.NoError(t, err)
	assert.Equal(t, "bob has been removed from the room by alice", notice.Body)
	assert.Equal(t, domain.MessageKindSystem, notice.Kind)

	roster, err := m.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Username)

	_, err = m.Kick(ctx, room.ID, "alice", "bob", bob.Participant.UserID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = m.AppendMessage(ctx, AppendRequest{RoomID: room.ID, Username: "bob", UserID: bob.Participant.UserID, Body: "still here"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.Len(t, pushed, 4)
	assert.Equal(t, events.Roster{Action: events.RosterKicked, Username: "bob", By: "alice"}, pushed[2])
}

func TestMemory_DuplicateUsernameAndRejoin(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	room := m.CreateRoom("R1", "pw", domain.RoomKindChat, time.Hour)
	uid := uuid.New()

	first, err := m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "pw", Username: "alice", UserID: uid})
	require.NoError(t, err)

	_, err = m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "pw", Username: "alice", UserID: uuid.New()})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, apperrors.CodeUsernameExists, apperrors.CodeOf(err))

	again, err := m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "pw", Username: "alice", UserID: uid})
	require.NoError(t, err)
	assert.Equal(t, first.Participant.JoinedAt, again.Participant.JoinedAt)

	_, err = m.Join(ctx, JoinRequest{RoomID: room.ID, Password: "nope", Username: "carol"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestMemory_RetriesInjectedTransientFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	room := m.CreateRoom("R1", "pw", domain.RoomKindChat, time.Hour)

	transient := apperrors.New(apperrors.CodeTransient, "flaky")
	m.FailNext(transient, transient)
	_, err := m.GetRoom(ctx, room.ID)
	require.NoError(t, err)

	m.FailNext(transient, transient, transient)
	_, err = m.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
}

func TestMemory_DocumentCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	room := m.CreateRoom("R1", "pw", domain.RoomKindCode, time.Hour)

	a, err := m.CreateDocument(ctx, CreateDocumentRequest{RoomID: room.ID, CreatedBy: "alice"})
	require.NoError(t, err)
	b, err := m.CreateDocument(ctx, CreateDocumentRequest{RoomID: room.ID, CreatedBy: "bob", Content: "other"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "alice", b.CreatedBy)

	content := "x"
	u1, err := m.UpdateDocument(ctx, room.ID, a.ID, domain.DocumentPatch{Content: &content})
	require.NoError(t, err)
	u2, err := m.UpdateDocument(ctx, room.ID, a.ID, domain.DocumentPatch{Content: &content})
	require.NoError(t, err)
	assert.True(t, u2.UpdatedAt.After(u1.UpdatedAt))
	assert.Equal(t, 2, m.DocumentWrites(a.ID))
}

func TestMemory_ExpiredRoomIsGone(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	m.SetClock(func() time.Time { return now })
	room := m.CreateRoom("R1", "pw", domain.RoomKindChat, time.Second)
	now = now.Add(2 * time.Second)

	_, err := m.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	_, err = m.GetRoom(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
