package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ephemera/internal/tasks"
)

// WorkerServer runs the asynq server and the scheduler that enqueues the
// periodic expiry sweep.
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	handler   *ExpireHandler
	every     time.Duration
	log       *zap.Logger
}

func NewWorkerServer(redisOpt asynq.RedisClientOpt, concurrency int, every time.Duration, handler *ExpireHandler, log *zap.Logger) *WorkerServer {
	log = log.With(zap.String("component", "worker_server"))

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 3,
				"low":     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error("task failed",
					zap.String("task_type", task.Type()),
					zap.Int("retries", retryCount),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})

	return &WorkerServer{server: server, scheduler: scheduler, handler: handler, every: every, log: log}
}

func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExpireRooms, ws.handler.ProcessExpire)
	mux.HandleFunc(tasks.TypeForgetRoom, ws.handler.ProcessForget)
	return mux
}

// Start registers the sweep and blocks until the server stops.
func (ws *WorkerServer) Start() error {
	spec := "@every " + ws.every.String()
	entryID, err := ws.scheduler.Register(spec, tasks.NewExpireRoomsTask(ws.every))
	if err != nil {
		return err
	}
	ws.log.Info("expiry sweep scheduled", zap.String("entry_id", entryID), zap.String("spec", spec))

	if err := ws.scheduler.Start(); err != nil {
		return err
	}

	ws.log.Info("worker server starting")
	if err := ws.server.Run(ws.Mux()); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WorkerServer) Shutdown() {
	ws.log.Info("shutting down worker server")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
}
