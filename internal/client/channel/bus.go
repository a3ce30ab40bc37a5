package channel

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

const busQueueSize = 256

// Bus is an in-process Transport. Frames go through the wire codec, are not
// echoed to their publisher, and keep per-publisher order.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*busSubscription]struct{}
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{topics: make(map[string]map[*busSubscription]struct{}), log: log}
}

func (b *Bus) Subscribe(ctx context.Context, roomID uuid.UUID, _ string, h Handlers) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	s := &busSubscription{
		bus:      b,
		id:       "bus-" + uuid.NewString(),
		topic:    events.RoomTopic(roomID),
		handlers: h,
		queue:    make(chan []byte, busQueueSize),
		done:     make(chan struct{}),
	}
	if b.topics[s.topic] == nil {
		b.topics[s.topic] = make(map[*busSubscription]struct{})
	}
	b.topics[s.topic][s] = struct{}{}
	b.mu.Unlock()

	h.status(StatusSubscribed, nil)
	go s.deliver()
	return s, nil
}

// Broadcast delivers a server-originated frame to every subscriber of the room.
func (b *Bus) Broadcast(roomID uuid.UUID, m events.Message) {
	frame, err := events.Encode(m, "server")
	if err != nil {
		b.log.Warn("bus encode failed", zap.Error(err))
		return
	}
	b.fanout(events.RoomTopic(roomID), frame, nil)
}

// Fail terminates every subscription of the room with status, as a dropped
// connection would.
func (b *Bus) Fail(roomID uuid.UUID, status Status, err error) {
	for _, s := range b.snapshot(events.RoomTopic(roomID), nil) {
		s.finish(status, err)
	}
}

// Subscribers returns the live subscription count of a room.
func (b *Bus) Subscribers(roomID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[events.RoomTopic(roomID)])
}

func (b *Bus) fanout(topic string, frame []byte, from *busSubscription) {
	for _, s := range b.snapshot(topic, from) {
		select {
		case s.queue <- frame:
		case <-s.done:
		default:
			b.log.Warn("bus subscriber queue full, dropping frame", zap.String("topic", topic))
		}
	}
}

func (b *Bus) snapshot(topic string, except *busSubscription) []*busSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*busSubscription, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		if s != except {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) remove(s *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics[s.topic], s)
	if len(b.topics[s.topic]) == 0 {
		delete(b.topics, s.topic)
	}
}

type busSubscription struct {
	bus      *Bus
	id       string
	topic    string
	handlers Handlers
	queue    chan []byte
	once     sync.Once
	done     chan struct{}
}

func (s *busSubscription) Topic() string { return s.topic }

func (s *busSubscription) Publish(ctx context.Context, m events.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return apperrors.ErrClosed
	default:
	}
	frame, err := events.Encode(m, s.id)
	if err != nil {
		return err
	}
	s.bus.fanout(s.topic, frame, s)
	return nil
}

func (s *busSubscription) Unsubscribe() error {
	s.finish(StatusClosed, nil)
	return nil
}

func (s *busSubscription) finish(status Status, err error) {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
		s.handlers.status(status, err)
	})
}

func (s *busSubscription) deliver() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			if err := dispatch(s.handlers, frame); err != nil {
				s.bus.log.Warn("dropping bus frame", zap.Error(err))
			}
		}
	}
}
