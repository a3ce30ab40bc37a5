package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Subscriber feeds room channel frames published by every gateway instance.
// A dropped subscription is re-established with capped exponential backoff
// until ctx ends, so a Redis restart does not silence the rooms served here.
type Subscriber struct {
	client  *redis.Client
	log     *zap.Logger
	backoff func() retry.Backoff
}

func NewSubscriber(client *redis.Client, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		client:  client,
		log:     log,
		backoff: resubscribeBackoff,
	}
}

func resubscribeBackoff() retry.Backoff {
	b := retry.NewExponential(250 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(10*time.Second, b)
}

// Subscribe pattern-subscribes to channels and calls handler for every
// message. It returns only when ctx is done or the backoff gives up.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	b := s.backoff()
	for {
		confirmed, err := s.receive(ctx, channels, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if confirmed {
			b = s.backoff()
		}
		wait, stop := b.Next()
		if stop {
			return err
		}
		s.log.Warn("room subscription dropped, resubscribing",
			zap.Strings("patterns", channels),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// receive runs one subscription. confirmed reports whether Redis acknowledged
// it before the error.
func (s *Subscriber) receive(ctx context.Context, channels []string, handler func(channel string, payload []byte)) (confirmed bool, err error) {
	sub := s.client.PSubscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	s.log.Debug("room subscription active", zap.Strings("patterns", channels))

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return true, err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
