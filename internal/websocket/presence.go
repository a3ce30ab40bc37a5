package websocket

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
)

type connectionCounter interface {
	Connect(ctx context.Context, roomID, userID uuid.UUID, clientID string) (bool, error)
	Disconnect(ctx context.Context, roomID, userID uuid.UUID, clientID string) (bool, error)
}

type presenceSetter interface {
	SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error)
}

// Presence flips a participant online on its first live connection and
// offline when its last one closes.
type Presence struct {
	conns        connectionCounter
	participants presenceSetter
	logger       *WebSocketLogger
}

func NewPresence(conns connectionCounter, participants presenceSetter, logger *WebSocketLogger) *Presence {
	return &Presence{conns: conns, participants: participants, logger: logger}
}

func (p *Presence) Connected(ctx context.Context, c *Client) {
	first, err := p.conns.Connect(ctx, c.RoomID, c.UserID, c.ID)
	if err != nil {
		p.logger.Error("presence connect failed", c.UserID, c.ID, err)
		return
	}
	p.logger.Info("client connected", c.UserID, c.ID, zap.String("room_id", c.RoomID.String()), zap.Bool("first", first))
	if first {
		p.set(ctx, c, true)
	}
}

func (p *Presence) Disconnected(ctx context.Context, c *Client) {
	last, err := p.conns.Disconnect(ctx, c.RoomID, c.UserID, c.ID)
	if err != nil {
		p.logger.Error("presence disconnect failed", c.UserID, c.ID, err)
		return
	}
	p.logger.Info("client disconnected", c.UserID, c.ID, zap.String("room_id", c.RoomID.String()), zap.Bool("last", last))
	if last {
		p.set(ctx, c, false)
	}
}

func (p *Presence) set(ctx context.Context, c *Client, online bool) {
	if _, err := p.participants.SetPresence(ctx, c.RoomID, c.Username, c.UserID, online); err != nil {
		// kicked or expired participants have no row to update
		p.logger.Warn("presence update skipped", c.UserID, c.ID, zap.Error(err))
	}
}
