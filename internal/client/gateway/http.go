package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
	"ephemera/internal/transport/httpdto"
	apperrors "ephemera/pkg/errors"
)

// HTTPGateway talks to the REST gateway served by cmd/gateway.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	log     *zap.Logger

	mu     sync.RWMutex
	passes map[uuid.UUID]string
}

type HTTPOption func(*HTTPGateway)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = c }
}

func WithRetryPolicy(p RetryPolicy) HTTPOption {
	return func(g *HTTPGateway) { g.retry = p }
}

func WithLogger(l *zap.Logger) HTTPOption {
	return func(g *HTTPGateway) { g.log = l }
}

func NewHTTPGateway(baseURL string, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   DefaultRetryPolicy(),
		log:     zap.NewNop(),
		passes:  make(map[uuid.UUID]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) UsePass(roomID uuid.UUID, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes[roomID] = token
}

func (g *HTTPGateway) pass(roomID uuid.UUID) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.passes[roomID]
}

func (g *HTTPGateway) GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	var resp httpdto.RoomResponse
	if err := g.call(ctx, http.MethodGet, "/v1/rooms/"+roomID.String(), "", nil, &resp); err != nil {
		return domain.Room{}, err
	}
	return resp.ToDomain()
}

func (g *HTTPGateway) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	body := httpdto.JoinRoomRequest{Password: req.Password, Username: req.Username}
	if req.UserID != uuid.Nil {
		body.UserID = req.UserID.String()
	}
	var resp httpdto.JoinRoomResponse
	if err := g.call(ctx, http.MethodPost, roomPath(req.RoomID, "participants"), "", body, &resp); err != nil {
		return JoinResult{}, err
	}

	room, err := resp.Room.ToDomain()
	if err != nil {
		return JoinResult{}, err
	}
	result := JoinResult{Room: room, RequiresUsername: resp.RequiresUsername}
	if resp.Participant != nil {
		p, err := resp.Participant.ToDomain()
		if err != nil {
			return JoinResult{}, err
		}
		result.Participant = p
		result.Token = resp.Token
		g.UsePass(room.ID, resp.Token)
	}
	return result, nil
}

func (g *HTTPGateway) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	var resp httpdto.ParticipantListResponse
	if err := g.call(ctx, http.MethodGet, roomPath(roomID, "participants"), g.pass(roomID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(resp.Participants))
	for _, p := range resp.Participants {
		dp, err := p.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, dp)
	}
	return out, nil
}

func (g *HTTPGateway) SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	body := httpdto.PresenceRequest{UserID: userID.String(), IsOnline: online}
	var resp httpdto.ParticipantResponse
	path := roomPath(roomID, "participants", url.PathEscape(username), "presence")
	if err := g.call(ctx, http.MethodPut, path, g.pass(roomID), body, &resp); err != nil {
		return domain.Participant{}, err
	}
	return resp.ToDomain()
}

func (g *HTTPGateway) Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error) {
	body := httpdto.KickRequest{AdminUsername: admin, AdminUserID: adminUserID.String()}
	var resp httpdto.KickResponse
	path := roomPath(roomID, "participants", url.PathEscape(target), "kick")
	if err := g.call(ctx, http.MethodPost, path, g.pass(roomID), body, &resp); err != nil {
		return domain.ChatMessage{}, err
	}
	return resp.Notice, nil
}

func (g *HTTPGateway) Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	path := roomPath(roomID, "participants", url.PathEscape(username))
	return g.call(ctx, http.MethodDelete, path, g.pass(roomID), nil, nil)
}

func (g *HTTPGateway) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	path := roomPath(roomID, "messages")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp httpdto.MessageListResponse
	if err := g.call(ctx, http.MethodGet, path, g.pass(roomID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (g *HTTPGateway) AppendMessage(ctx context.Context, req AppendRequest) (domain.ChatMessage, error) {
	body := httpdto.AppendMessageRequest{
		Username: req.Username,
		UserID:   req.UserID.String(),
		Body:     req.Body,
		Kind:     string(req.Kind),
	}
	var msg domain.ChatMessage
	if err := g.call(ctx, http.MethodPost, roomPath(req.RoomID, "messages"), g.pass(req.RoomID), body, &msg); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

func (g *HTTPGateway) GetDocument(ctx context.Context, roomID uuid.UUID, name string) (domain.Document, error) {
	var resp httpdto.DocumentResponse
	if err := g.call(ctx, http.MethodGet, roomPath(roomID, "documents", url.PathEscape(name)), g.pass(roomID), nil, &resp); err != nil {
		return domain.Document{}, err
	}
	return resp.Document, nil
}

func (g *HTTPGateway) CreateDocument(ctx context.Context, req CreateDocumentRequest) (domain.Document, error) {
	body := httpdto.CreateDocumentRequest{
		Name:      req.Name,
		Language:  req.Language,
		Content:   req.Content,
		CreatedBy: req.CreatedBy,
	}
	var resp httpdto.DocumentResponse
	if err := g.call(ctx, http.MethodPost, roomPath(req.RoomID, "documents"), g.pass(req.RoomID), body, &resp); err != nil {
		return domain.Document{}, err
	}
	return resp.Document, nil
}

func (g *HTTPGateway) UpdateDocument(ctx context.Context, roomID, id uuid.UUID, patch domain.DocumentPatch) (domain.Document, error) {
	var resp httpdto.DocumentResponse
	if err := g.call(ctx, http.MethodPatch, "/v1/documents/"+id.String(), g.pass(roomID), patch, &resp); err != nil {
		return domain.Document{}, err
	}
	return resp.Document, nil
}

func roomPath(roomID uuid.UUID, parts ...string) string {
	return "/v1/rooms/" + roomID.String() + "/" + strings.Join(parts, "/")
}

// errNotSent marks a failure before the request left this process.
var errNotSent = errors.New("request not sent")

// call performs one logical request with bounded retry. out may be nil.
// A POST is repeated only when the connection was never established, so a
// message the server stored before the reply was lost is not posted twice.
func (g *HTTPGateway) call(ctx context.Context, method, path, token string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	replay := method != http.MethodPost
	attempt := 0
	return g.retry.do(ctx, func(ctx context.Context) error {
		attempt++
		err := g.roundTrip(ctx, method, path, token, payload, out)
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		g.log.Warn("gateway call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !replay && !errors.Is(err, errNotSent) {
			return final{err}
		}
		return err
	})
}

func (g *HTTPGateway) roundTrip(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		transient := apperrors.New(apperrors.CodeTransient, err.Error())
		var op *net.OpError
		if errors.As(err, &op) && op.Op == "dial" {
			return fmt.Errorf("%w: %w", errNotSent, transient)
		}
		return transient
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return apperrors.New(apperrors.CodeTransient, err.Error())
	}

	var env httpdto.Response[json.RawMessage]
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && res.StatusCode < 300 {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if res.StatusCode >= 300 || !env.Success {
		return env.Failure(res.StatusCode)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

var _ Gateway = (*HTTPGateway)(nil)
