package channel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxFrameSize     = 1024 * 1024
)

// WSTransport dials the gateway's room channel endpoint.
type WSTransport struct {
	baseURL  string
	dialer   *websocket.Dialer
	pongWait time.Duration
	log      *zap.Logger
}

// NewWSTransport takes the gateway base URL (http or ws scheme).
func NewWSTransport(baseURL string, log *zap.Logger) *WSTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSTransport{
		baseURL:  wsURL(baseURL),
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		pongWait: 70 * time.Second,
		log:      log.With(zap.String("component", "channel")),
	}
}

// SetPongWait sets how long the connection may stay silent before it is
// reported as timed out.
func (t *WSTransport) SetPongWait(d time.Duration) {
	t.pongWait = d
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

func (t *WSTransport) Subscribe(ctx context.Context, roomID uuid.UUID, token string, h Handlers) (Subscription, error) {
	u := t.baseURL + "/v1/rooms/" + roomID.String() + "/channel?token=" + url.QueryEscape(token)
	conn, resp, err := t.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, apperrors.FromHTTPStatus(resp.StatusCode, "", "channel handshake rejected")
		}
		return nil, apperrors.New(apperrors.CodeTransient, err.Error())
	}
	conn.SetReadLimit(maxFrameSize)

	s := &wsSubscription{
		topic:    events.RoomTopic(roomID),
		conn:     conn,
		handlers: h,
		pongWait: t.pongWait,
		done:     make(chan struct{}),
		log:      t.log.With(zap.String("room_id", roomID.String())),
	}
	h.status(StatusSubscribed, nil)
	go s.readPump()
	return s, nil
}

type wsSubscription struct {
	topic    string
	conn     *websocket.Conn
	handlers Handlers
	pongWait time.Duration
	log      *zap.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func (s *wsSubscription) Topic() string { return s.topic }

func (s *wsSubscription) Publish(ctx context.Context, m events.Message) error {
	select {
	case <-s.done:
		return apperrors.ErrClosed
	default:
	}
	frame, err := events.Encode(m, "")
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.finish(StatusError, err)
		return apperrors.New(apperrors.CodeTransient, err.Error())
	}
	return nil
}

func (s *wsSubscription) Unsubscribe() error {
	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.finish(StatusClosed, nil)
	return nil
}

// finish reports the terminal status once and closes the connection.
func (s *wsSubscription) finish(status Status, err error) {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
		s.handlers.status(status, err)
	})
}

func (s *wsSubscription) readPump() {
	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.finish(StatusTimedOut, err)
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.finish(StatusClosed, nil)
				return
			}
			s.finish(StatusError, err)
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		if err := dispatch(s.handlers, data); err != nil {
			s.log.Warn("dropping channel frame", zap.Error(err))
		}
	}
}
