package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ephemera/internal/tasks"
)

type mockExpirer struct{ mock.Mock }

func (m *mockExpirer) ExpireDue(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

type mockForgetter struct{ mock.Mock }

func (m *mockForgetter) Forget(ctx context.Context, roomIDs ...uuid.UUID) error {
	return m.Called(ctx, roomIDs).Error(0)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task.Type())
	return &asynq.TaskInfo{}, args.Error(0)
}

func TestProcessExpire_FansOutForgetTasks(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rooms := &mockExpirer{}
	rooms.On("ExpireDue", mock.Anything).Return([]uuid.UUID{a, b}, nil)
	queue := &mockQueue{}
	queue.On("EnqueueContext", mock.Anything, tasks.TypeForgetRoom).Return(nil)

	h := NewExpireHandler(rooms, &mockForgetter{}, queue, nil)
	require.NoError(t, h.ProcessExpire(context.Background(), tasks.NewExpireRoomsTask(0)))
	queue.AssertNumberOfCalls(t, "EnqueueContext", 2)
}

func TestProcessExpire_NothingDue(t *testing.T) {
	rooms := &mockExpirer{}
	rooms.On("ExpireDue", mock.Anything).Return(nil, nil)
	queue := &mockQueue{}

	h := NewExpireHandler(rooms, &mockForgetter{}, queue, nil)
	require.NoError(t, h.ProcessExpire(context.Background(), tasks.NewExpireRoomsTask(0)))
	queue.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}

func TestProcessExpire_RepositoryFailureRetries(t *testing.T) {
	rooms := &mockExpirer{}
	rooms.On("ExpireDue", mock.Anything).Return(nil, errors.New("db down"))

	h := NewExpireHandler(rooms, &mockForgetter{}, nil, nil)
	err := h.ProcessExpire(context.Background(), tasks.NewExpireRoomsTask(0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessForget(t *testing.T) {
	id := uuid.New()
	presence := &mockForgetter{}
	presence.On("Forget", mock.Anything, []uuid.UUID{id}).Return(nil)

	task, err := tasks.NewForgetRoomTask(id)
	require.NoError(t, err)
	h := NewExpireHandler(&mockExpirer{}, presence, nil, nil)
	require.NoError(t, h.ProcessForget(context.Background(), task))
	presence.AssertExpectations(t)

	err = h.ProcessForget(context.Background(), asynq.NewTask(tasks.TypeForgetRoom, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
