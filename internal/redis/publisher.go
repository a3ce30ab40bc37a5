package redis

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ephemera/internal/events"
)

// ServerOrigin marks frames produced by the gateway itself.
const ServerOrigin = "server"

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// PublishRoom encodes m as a server frame and publishes it on the room topic.
func (p *Publisher) PublishRoom(ctx context.Context, roomID uuid.UUID, m events.Message) error {
	payload, err := events.Encode(m, ServerOrigin)
	if err != nil {
		return err
	}
	return p.Publish(ctx, events.RoomTopic(roomID), payload)
}
