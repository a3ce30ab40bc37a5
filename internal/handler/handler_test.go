package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ephemera/config"
	"ephemera/internal/domain"
	"ephemera/internal/middleware"
	"ephemera/internal/services"
	apperrors "ephemera/pkg/errors"
)

type mockRooms struct{ mock.Mock }

func (m *mockRooms) Create(ctx context.Context, in services.CreateRoomInput) (domain.Room, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.Room), args.Error(1)
}

func (m *mockRooms) Get(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Room), args.Error(1)
}

func (m *mockRooms) Verify(ctx context.Context, id uuid.UUID, password string) (domain.Room, error) {
	args := m.Called(ctx, id, password)
	return args.Get(0).(domain.Room), args.Error(1)
}

type mockParticipants struct{ mock.Mock }

func (m *mockParticipants) Join(ctx context.Context, in services.JoinInput) (services.JoinResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(services.JoinResult), args.Error(1)
}

func (m *mockParticipants) List(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]domain.Participant), args.Error(1)
}

func (m *mockParticipants) SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	args := m.Called(ctx, roomID, username, userID, online)
	return args.Get(0).(domain.Participant), args.Error(1)
}

func (m *mockParticipants) Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, target, admin, adminUserID)
	return args.Get(0).(domain.ChatMessage), args.Error(1)
}

func (m *mockParticipants) Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	return m.Called(ctx, roomID, username, userID).Error(0)
}

type mockMessages struct{ mock.Mock }

func (m *mockMessages) Append(ctx context.Context, in services.AppendInput) (domain.ChatMessage, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.ChatMessage), args.Error(1)
}

func (m *mockMessages) List(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	return args.Get(0).([]domain.ChatMessage), args.Error(1)
}

type mockDocuments struct{ mock.Mock }

func (m *mockDocuments) Get(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	args := m.Called(ctx, roomID, name)
	return args.Get(0).(domain.Document), args.Error(1)
}

func (m *mockDocuments) Create(ctx context.Context, in services.CreateDocumentInput) (domain.Document, bool, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.Document), args.Bool(1), args.Error(2)
}

func (m *mockDocuments) Update(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	args := m.Called(ctx, roomID, id, patch)
	return args.Get(0).(domain.Document), args.Error(1)
}

func (m *mockDocuments) Delete(ctx context.Context, roomID, id uuid.UUID) error {
	return m.Called(ctx, roomID, id).Error(0)
}

type testEnv struct {
	router       *gin.Engine
	auth         *services.AuthService
	rooms        *mockRooms
	participants *mockParticipants
	messages     *mockMessages
	documents    *mockDocuments
	room         domain.Room
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		auth:         services.NewAuthService(&config.Config{JWTSecret: "handler-secret"}),
		rooms:        &mockRooms{},
		participants: &mockParticipants{},
		messages:     &mockMessages{},
		documents:    &mockDocuments{},
		room: domain.Room{
			ID:        uuid.New(),
			Name:      "pairing",
			Kind:      domain.RoomKindCode,
			Active:    true,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}

	rh := NewRoomHandler(env.rooms)
	ph := NewParticipantHandler(env.participants)
	mh := NewMessageHandler(env.messages)
	dh := NewDocumentHandler(env.documents)
	pass := middleware.RoomPassMiddleware(env.auth)

	r := gin.New()
	rooms := r.Group("/v1/rooms")
	rooms.POST("", rh.Create)
	rooms.GET("/:roomID", rh.Get)
	rooms.POST("/:roomID/participants", ph.Join)
	rooms.GET("/:roomID/participants", pass, ph.List)
	rooms.POST("/:roomID/participants/:username/kick", pass, ph.Kick)
	rooms.DELETE("/:roomID/participants/:username", pass, ph.Leave)
	rooms.POST("/:roomID/messages", pass, mh.Append)
	rooms.POST("/:roomID/documents", pass, dh.Create)
	r.PATCH("/v1/documents/:documentID", pass, dh.Update)
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, room domain.Room, username string, userID uuid.UUID) string {
	t.Helper()
	tok, err := e.auth.Issue(room, domain.Participant{Username: username, UserID: userID})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRoomHandler_CreateAppliesTTL(t *testing.T) {
	env := newTestEnv()
	env.rooms.On("Create", mock.Anything, services.CreateRoomInput{
		Name: "pairing", Password: "pw", Kind: domain.RoomKindCode, TTL: 90 * time.Second,
	}).Return(env.room, nil)

	w := env.do(t, http.MethodPost, "/v1/rooms", "", map[string]any{
		"name": "pairing", "password": "pw", "kind": "code", "ttl_seconds": 90,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	env.rooms.AssertExpectations(t)
}

func TestRoomHandler_GetDistinguishesMissingFromExpired(t *testing.T) {
	env := newTestEnv()
	expired := env.room
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	missing := uuid.New()
	env.rooms.On("Get", mock.Anything, expired.ID).Return(expired, nil)
	env.rooms.On("Get", mock.Anything, missing).Return(domain.Room{}, apperrors.ErrNotFound)

	w := env.do(t, http.MethodGet, "/v1/rooms/"+expired.ID.String(), "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "GONE", decode(t, w).Code)

	w = env.do(t, http.MethodGet, "/v1/rooms/"+missing.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Code)
}

func TestParticipantHandler_JoinWithoutUsernameAsksForOne(t *testing.T) {
	env := newTestEnv()
	env.participants.On("Join", mock.Anything, mock.MatchedBy(func(in services.JoinInput) bool {
		return in.Username == "" && in.Password == "pw"
	})).Return(services.JoinResult{Room: env.room, RequiresUsername: true}, nil)

	w := env.do(t, http.MethodPost, "/v1/rooms/"+env.room.ID.String()+"/participants", "", map[string]any{"password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		RequiresUsername bool            `json:"requires_username"`
		Token            string          `json:"token"`
		Participant      json.RawMessage `json:"participant"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.True(t, data.RequiresUsername)
	assert.Empty(t, data.Token)
	assert.Nil(t, data.Participant)
}

func TestParticipantHandler_JoinDuplicateUsername(t *testing.T) {
	env := newTestEnv()
	env.participants.On("Join", mock.Anything, mock.Anything).Return(services.JoinResult{}, apperrors.ErrConflict)

	w := env.do(t, http.MethodPost, "/v1/rooms/"+env.room.ID.String()+"/participants", "", map[string]any{
		"password": "pw", "username": "alice", "user_id": uuid.NewString(),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USERNAME_EXISTS", decode(t, w).Code)
}

func TestParticipantHandler_ListRequiresPassForRoom(t *testing.T) {
	env := newTestEnv()
	alice := uuid.New()
	env.participants.On("List", mock.Anything, env.room.ID).Return([]domain.Participant{
		{RoomID: env.room.ID, Username: "alice", UserID: alice, IsOnline: true},
	}, nil)
	path := "/v1/rooms/" + env.room.ID.String() + "/participants"

	w := env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := env.room
	other.ID = uuid.New()
	w = env.do(t, http.MethodGet, path, env.token(t, other, "alice", alice), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, path, env.token(t, env.room, "alice", alice), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)
}

func TestParticipantHandler_KickChecksIdentityBeforeService(t *testing.T) {
	env := newTestEnv()
	alice, bob := uuid.New(), uuid.New()
	path := "/v1/rooms/" + env.room.ID.String() + "/participants/alice/kick"

	w := env.do(t, http.MethodPost, path, env.token(t, env.room, "bob", bob), map[string]any{
		"admin_username": "alice", "admin_user_id": alice.String(),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	env.participants.AssertNotCalled(t, "Kick", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	notice := domain.ChatMessage{Username: domain.SystemUsername, Body: domain.KickNotice("bob", "alice"), Kind: domain.MessageKindSystem}
	env.participants.On("Kick", mock.Anything, env.room.ID, "bob", "alice", alice).Return(notice, nil)
	w = env.do(t, http.MethodPost, "/v1/rooms/"+env.room.ID.String()+"/participants/bob/kick", env.token(t, env.room, "alice", alice), map[string]any{
		"admin_username": "alice", "admin_user_id": alice.String(),
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob has been removed from the room by alice")

	env.participants.On("Kick", mock.Anything, env.room.ID, "alice", "bob", bob).Return(domain.ChatMessage{}, apperrors.ErrForbidden)
	w = env.do(t, http.MethodPost, path, env.token(t, env.room, "bob", bob), map[string]any{
		"admin_username": "bob", "admin_user_id": bob.String(),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestParticipantHandler_LeaveOnlySelf(t *testing.T) {
	env := newTestEnv()
	bob := uuid.New()
	env.participants.On("Leave", mock.Anything, env.room.ID, "bob", bob).Return(nil)

	w := env.do(t, http.MethodDelete, "/v1/rooms/"+env.room.ID.String()+"/participants/alice", env.token(t, env.room, "bob", bob), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/rooms/"+env.room.ID.String()+"/participants/bob", env.token(t, env.room, "bob", bob), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	env.participants.AssertExpectations(t)
}

func TestMessageHandler_AppendAsSelfOnly(t *testing.T) {
	env := newTestEnv()
	bob := uuid.New()
	path := "/v1/rooms/" + env.room.ID.String() + "/messages"
	tok := env.token(t, env.room, "bob", bob)

	w := env.do(t, http.MethodPost, path, tok, map[string]any{"username": "alice", "body": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.messages.On("Append", mock.Anything, services.AppendInput{
		RoomID: env.room.ID, Username: "bob", UserID: bob, Body: "hi", Kind: domain.MessageKindSystem,
	}).Return(domain.ChatMessage{}, apperrors.ErrForbidden)
	w = env.do(t, http.MethodPost, path, tok, map[string]any{"username": "bob", "body": "hi", "kind": "system"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.messages.On("Append", mock.Anything, services.AppendInput{
		RoomID: env.room.ID, Username: "bob", UserID: bob, Body: "hi", Kind: "",
	}).Return(domain.ChatMessage{ID: uuid.New(), Username: "bob", Body: "hi", Kind: domain.MessageKindText}, nil)
	w = env.do(t, http.MethodPost, path, tok, map[string]any{"username": "bob", "body": "hi"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestDocumentHandler_CreateIsIdempotent(t *testing.T) {
	env := newTestEnv()
	alice := uuid.New()
	doc := domain.Document{ID: uuid.New(), RoomID: env.room.ID, Name: domain.MainDocument, Language: domain.DefaultLanguage, Active: true}
	in := services.CreateDocumentInput{RoomID: env.room.ID, Name: "main", CreatedBy: "alice"}
	env.documents.On("Create", mock.Anything, in).Return(doc, true, nil).Once()
	env.documents.On("Create", mock.Anything, in).Return(doc, false, nil).Once()

	path := "/v1/rooms/" + env.room.ID.String() + "/documents"
	tok := env.token(t, env.room, "alice", alice)
	body := map[string]any{"name": "main", "created_by": "alice"}

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, tok, body).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, tok, body).Code)
}

func TestDocumentHandler_UpdateScopedToPassRoom(t *testing.T) {
	env := newTestEnv()
	alice := uuid.New()
	docID := uuid.New()
	content := "print(2)"
	patch := domain.DocumentPatch{Content: &content}
	env.documents.On("Update", mock.Anything, env.room.ID, docID, patch).Return(domain.Document{}, apperrors.ErrForbidden)

	w := env.do(t, http.MethodPatch, "/v1/documents/"+docID.String(), env.token(t, env.room, "alice", alice), map[string]any{"content": content})
	assert.Equal(t, http.StatusForbidden, w.Code)
	env.documents.AssertExpectations(t)
}
