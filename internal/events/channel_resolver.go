package events

import (
	"strings"

	"github.com/google/uuid"
)

// Redis channel prefixes
const (
	ChannelPrefixRoom  = "channel:room:"
	ChannelPatternRoom = ChannelPrefixRoom + "*"
)

// RoomTopic returns the pub/sub channel of a room.
func RoomTopic(roomID uuid.UUID) string {
	return ChannelPrefixRoom + roomID.String()
}

// RoomFromTopic extracts the room id from a room channel name.
func RoomFromTopic(channel string) (uuid.UUID, bool) {
	if !strings.HasPrefix(channel, ChannelPrefixRoom) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(channel, ChannelPrefixRoom))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
