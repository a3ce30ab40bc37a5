package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an append-only chat entry. Body is opaque: ciphertext for
// encrypted kinds, plaintext for system messages.
type ChatMessage struct {
	ID        uuid.UUID   `json:"id"`
	RoomID    uuid.UUID   `json:"room_id"`
	Username  string      `json:"username"`
	UserID    uuid.UUID   `json:"user_id"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

// SystemUserID authors server generated messages.
var SystemUserID = uuid.Nil

// SystemUsername authors server generated messages.
const SystemUsername = "system"
