package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ephemera/internal/events"
	"ephemera/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Client is one participant connection to a room channel.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	relay    events.Publisher
	ID       string
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Username string

	connectedAt time.Time
	logger      *WebSocketLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, relay events.Publisher, roomID, userID uuid.UUID, username string, logger *WebSocketLogger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		relay:       relay,
		ID:          uuid.New().String(),
		RoomID:      roomID,
		UserID:      userID,
		Username:    username,
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// Topic is the room channel the client is bound to.
func (c *Client) Topic() string {
	return events.RoomTopic(c.RoomID)
}

// SendMessage queues msg without blocking; a full queue drops it.
func (c *Client) SendMessage(msg []byte) {
	select {
	case c.send <- msg:
	default:
		metrics.ChannelFrames.WithLabelValues("any", "dropped").Inc()
		c.logger.Warn("send queue full", c.UserID, c.ID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket unexpected close", c.UserID, c.ID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.handleMessage(message); err != nil {
			c.logger.Warn("dropping client frame", c.UserID, c.ID, zap.Error(err))
		}
	}
}

// handleMessage accepts only content and cursor frames, pins their author to
// the authenticated username and relays them stamped with this connection's id.
func (c *Client) handleMessage(message []byte) error {
	_, m, err := events.Decode(message)
	if err != nil {
		metrics.ChannelFrames.WithLabelValues("unknown", "dropped").Inc()
		return err
	}
	switch msg := m.(type) {
	case events.Content:
		msg.Author = c.Username
		m = msg
	case events.Cursor:
		msg.Username = c.Username
		m = msg
	default:
		metrics.ChannelFrames.WithLabelValues(string(m.Kind()), "dropped").Inc()
		c.logger.Warn("client may not publish kind", c.UserID, c.ID, zap.String("kind", string(m.Kind())))
		return nil
	}
	payload, err := events.Encode(m, c.ID)
	if err != nil {
		return err
	}
	metrics.ChannelFrames.WithLabelValues(string(m.Kind()), "in").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return c.relay.Publish(ctx, c.Topic(), payload)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("websocket write failed", c.UserID, c.ID, err)
				return
			}
			metrics.ChannelFrames.WithLabelValues("any", "out").Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
