package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ephemera/internal/domain"
)

// Cache key patterns:
// - room:{room_id} - room metadata including the password hash, RoomCacheTTL
const roomKeyPrefix = "room:"

// RoomCache caches room metadata read on every participant call.
type RoomCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRoomCache(client *goredis.Client, ttl time.Duration) *RoomCache {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &RoomCache{client: client, ttl: ttl}
}

type cachedRoom struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"password_hash"`
	Kind         domain.RoomKind `json:"kind"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Active       bool            `json:"active"`
}

func roomKey(id uuid.UUID) string { return roomKeyPrefix + id.String() }

// Get returns the cached room. A miss is (zero, false, nil).
func (c *RoomCache) Get(ctx context.Context, id uuid.UUID) (domain.Room, bool, error) {
	data, err := c.client.Get(ctx, roomKey(id)).Bytes()
	if err == goredis.Nil {
		return domain.Room{}, false, nil
	}
	if err != nil {
		return domain.Room{}, false, err
	}
	var cr cachedRoom
	if err := json.Unmarshal(data, &cr); err != nil {
		return domain.Room{}, false, err
	}
	return domain.Room(cr), true, nil
}

// Set caches room until the shorter of the cache TTL and the room's remaining lifetime.
func (c *RoomCache) Set(ctx context.Context, room domain.Room) error {
	ttl := c.ttl
	if rem := room.Remaining(time.Now()); rem < ttl {
		ttl = rem
	}
	if ttl <= 0 {
		return c.Invalidate(ctx, room.ID)
	}
	data, err := json.Marshal(cachedRoom(room))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, roomKey(room.ID), data, ttl).Err()
}

func (c *RoomCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
