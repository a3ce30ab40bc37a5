package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephemera/internal/events"
	"ephemera/internal/metrics"
)

// PresenceHook is told about every connection that joins or leaves the hub.
type PresenceHook interface {
	Connected(ctx context.Context, c *Client)
	Disconnected(ctx context.Context, c *Client)
}

// Hub fans room frames out to the local connections subscribed to each room topic.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// channels maps room topic to the clients subscribed to it
	channels map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	presence PresenceHook
	log      *WebSocketLogger
}

func NewHub(presence PresenceHook, log *WebSocketLogger) *Hub {
	if log == nil {
		log = NewWebSocketLogger(nil)
	}
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		presence:   presence,
		log:        log,
	}
}

// Run starts the hub's event loop. When ctx ends every client is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
			h.notify(client, true)
		case client := <-h.unregister:
			if h.removeClient(client) {
				h.notify(client, false)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast delivers payload to every subscriber of channel except the
// connection that originated it. A kicked roster frame also closes the
// target's connections once the frame is queued to them.
func (h *Hub) Broadcast(channel string, payload []byte) {
	env, m, err := events.Decode(payload)
	if err != nil {
		h.log.logger.Warn("dropping undecodable frame", zap.String("channel", channel), zap.Error(err))
		return
	}
	kicked := ""
	if r, ok := m.(events.Roster); ok && r.Action == events.RosterKicked {
		kicked = r.Username
	}

	var evict []*Client
	h.mu.RLock()
	for c := range h.channels[channel] {
		if c.ID == env.Origin {
			continue
		}
		c.SendMessage(payload)
		if kicked != "" && c.Username == kicked {
			evict = append(evict, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range evict {
		h.log.Info("closing kicked connection", c.UserID, c.ID, zap.String("room_id", c.RoomID.String()))
		h.Unregister(c)
	}
}

// Publish makes the hub usable as its own relay when no Redis is configured.
func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	h.Broadcast(channel, payload)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	topic := client.Topic()
	if _, ok := h.channels[topic]; !ok {
		h.channels[topic] = make(map[*Client]struct{})
	}
	h.channels[topic][client] = struct{}{}
	metrics.WSConnections.Inc()
}

func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	topic := client.Topic()
	if subscribers, ok := h.channels[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, topic)
		}
	}
	delete(h.clients, client.ID)
	close(client.send)
	metrics.WSConnections.Dec()
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
		metrics.WSConnections.Dec()
	}
	h.channels = make(map[string]map[*Client]struct{})
}

func (h *Hub) notify(client *Client, connected bool) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if connected {
			h.presence.Connected(ctx, client)
		} else {
			h.presence.Disconnected(ctx, client)
		}
	}()
}
