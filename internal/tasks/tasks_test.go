package tasks

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForgetRoomTaskPayload(t *testing.T) {
	id := uuid.New()
	task, err := NewForgetRoomTask(id)
	require.NoError(t, err)
	assert.Equal(t, TypeForgetRoom, task.Type())

	p, err := ParseForgetRoom(task)
	require.NoError(t, err)
	assert.Equal(t, id, p.RoomID)
}

func TestExpireRoomsTaskType(t *testing.T) {
	assert.Equal(t, TypeExpireRooms, NewExpireRoomsTask(30*time.Second).Type())
}
