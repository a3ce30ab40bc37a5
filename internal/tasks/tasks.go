package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeExpireRooms deactivates every room whose expiry has passed.
	TypeExpireRooms = "rooms:expire"
	// TypeForgetRoom drops ephemeral Redis state of one expired room.
	TypeForgetRoom = "rooms:forget"
)

type ForgetRoomPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

// NewExpireRoomsTask builds the periodic sweep task. Unique keeps overlapping
// sweeps from piling up when the scheduler outpaces a slow database.
func NewExpireRoomsTask(every time.Duration) *asynq.Task {
	opts := []asynq.Option{asynq.MaxRetry(1)}
	if every >= time.Second {
		opts = append(opts, asynq.Unique(every))
	}
	return asynq.NewTask(TypeExpireRooms, nil, opts...)
}

func NewForgetRoomTask(roomID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ForgetRoomPayload{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeForgetRoom, payload, asynq.MaxRetry(5), asynq.Queue("low")), nil
}

func ParseForgetRoom(t *asynq.Task) (ForgetRoomPayload, error) {
	var p ForgetRoomPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
