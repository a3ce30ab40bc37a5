// Package channel is the client side of the per-room Transport Channel.
package channel

import (
	"context"

	"github.com/google/uuid"

	"ephemera/internal/events"
)

// Status is a subscription's connection state as seen by the subscriber.
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
	StatusClosed     Status = "closed"
)

// Terminal reports whether no further frames will be delivered.
func (s Status) Terminal() bool {
	return s != StatusSubscribed
}

// Handlers receive decoded frames. Nil handlers drop their kind. Handlers of
// one subscription are called from a single goroutine in arrival order.
type Handlers struct {
	OnContent func(events.Content)
	OnCursor  func(events.Cursor)
	OnRoster  func(events.Roster)
	OnChat    func(events.Chat)
	// OnStatus reports StatusSubscribed once, then exactly one terminal status.
	OnStatus func(Status, error)
}

type Subscription interface {
	Topic() string
	Publish(ctx context.Context, m events.Message) error
	Unsubscribe() error
}

type Transport interface {
	Subscribe(ctx context.Context, roomID uuid.UUID, token string, h Handlers) (Subscription, error)
}

// dispatch decodes one frame and routes it by kind.
func dispatch(h Handlers, data []byte) error {
	_, m, err := events.Decode(data)
	if err != nil {
		return err
	}
	switch msg := m.(type) {
	case events.Content:
		if h.OnContent != nil {
			h.OnContent(msg)
		}
	case events.Cursor:
		if h.OnCursor != nil {
			h.OnCursor(msg)
		}
	case events.Roster:
		if h.OnRoster != nil {
			h.OnRoster(msg)
		}
	case events.Chat:
		if h.OnChat != nil {
			h.OnChat(msg)
		}
	}
	return nil
}

func (h Handlers) status(s Status, err error) {
	if h.OnStatus != nil {
		h.OnStatus(s, err)
	}
}
