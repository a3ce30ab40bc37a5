package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ephemera/internal/metrics"
	"ephemera/internal/tasks"
)

type RoomExpirer interface {
	ExpireDue(ctx context.Context) ([]uuid.UUID, error)
}

type PresenceForgetter interface {
	Forget(ctx context.Context, roomIDs ...uuid.UUID) error
}

type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExpireHandler runs the expiry sweep and the per-room cleanup it fans out.
type ExpireHandler struct {
	rooms    RoomExpirer
	presence PresenceForgetter
	queue    TaskEnqueuer
	log      *zap.Logger
}

func NewExpireHandler(rooms RoomExpirer, presence PresenceForgetter, queue TaskEnqueuer, log *zap.Logger) *ExpireHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpireHandler{rooms: rooms, presence: presence, queue: queue, log: log}
}

func (h *ExpireHandler) ProcessExpire(ctx context.Context, t *asynq.Task) error {
	ids, err := h.rooms.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("expire rooms: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	metrics.RoomsExpired.Add(float64(len(ids)))
	h.log.Info("expired rooms", zap.Int("count", len(ids)))

	for _, id := range ids {
		task, err := tasks.NewForgetRoomTask(id)
		if err != nil {
			return err
		}
		if h.queue == nil {
			if err := h.presence.Forget(ctx, id); err != nil {
				h.log.Warn("forget room presence failed", zap.String("room_id", id.String()), zap.Error(err))
			}
			continue
		}
		if _, err := h.queue.EnqueueContext(ctx, task); err != nil {
			h.log.Warn("enqueue forget room failed", zap.String("room_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

func (h *ExpireHandler) ProcessForget(ctx context.Context, t *asynq.Task) error {
	p, err := tasks.ParseForgetRoom(t)
	if err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.presence.Forget(ctx, p.RoomID); err != nil {
		return fmt.Errorf("forget room %s: %w", p.RoomID, err)
	}
	return nil
}
