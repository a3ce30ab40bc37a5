package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RoomPresence counts live channel connections per (room, user) so a user with
// several tabs open only goes offline when the last one disconnects.
type RoomPresence struct {
	client *goredis.Client
	ttl    time.Duration
}

// Redis key prefixes for presence
const (
	presenceKeyPrefix = "presence:room:"
)

func NewRoomPresence(client *goredis.Client, ttl time.Duration) *RoomPresence {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &RoomPresence{client: client, ttl: ttl}
}

func connectionsKey(roomID, userID uuid.UUID) string {
	return fmt.Sprintf("%s%s:user:%s", presenceKeyPrefix, roomID, userID)
}

func onlineKey(roomID uuid.UUID) string {
	return presenceKeyPrefix + roomID.String() + ":online"
}

// Connect records clientID and reports whether it is the user's first live connection.
func (p *RoomPresence) Connect(ctx context.Context, roomID, userID uuid.UUID, clientID string) (bool, error) {
	key := connectionsKey(roomID, userID)
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, clientID)
	pipe.Expire(ctx, key, p.ttl)
	card := pipe.SCard(ctx, key)
	pipe.SAdd(ctx, onlineKey(roomID), userID.String())
	pipe.Expire(ctx, onlineKey(roomID), p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return card.Val() == 1, nil
}

// Disconnect removes clientID and reports whether the user has no connection left.
func (p *RoomPresence) Disconnect(ctx context.Context, roomID, userID uuid.UUID, clientID string) (bool, error) {
	key := connectionsKey(roomID, userID)
	pipe := p.client.TxPipeline()
	pipe.SRem(ctx, key, clientID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if card.Val() > 0 {
		return false, nil
	}
	return true, p.client.SRem(ctx, onlineKey(roomID), userID.String()).Err()
}

// Touch extends the TTL of a live connection set.
func (p *RoomPresence) Touch(ctx context.Context, roomID, userID uuid.UUID) error {
	pipe := p.client.Pipeline()
	pipe.Expire(ctx, connectionsKey(roomID, userID), p.ttl)
	pipe.Expire(ctx, onlineKey(roomID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Online returns the user ids with at least one live connection in the room.
func (p *RoomPresence) Online(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	members, err := p.client.SMembers(ctx, onlineKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if id, err := uuid.Parse(m); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// Forget drops every presence key of the given rooms.
func (p *RoomPresence) Forget(ctx context.Context, roomIDs ...uuid.UUID) error {
	for _, roomID := range roomIDs {
		iter := p.client.Scan(ctx, 0, presenceKeyPrefix+roomID.String()+":*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
