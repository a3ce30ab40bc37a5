package websocket

import (
	"context"

	"ephemera/internal/events"
)

// RedisBridge feeds frames published on any room topic, by any gateway
// instance, into the local hub.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{events.ChannelPatternRoom}, func(channel string, payload []byte) {
		if _, ok := events.RoomFromTopic(channel); !ok {
			return
		}
		// no connection to this room on this instance
		if b.hub.ChannelSubscriberCount(channel) == 0 {
			return
		}
		b.hub.Broadcast(channel, payload)
	})
}
