package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"ephemera/config"
	appredis "ephemera/internal/redis"
	"ephemera/internal/repository"
	"ephemera/internal/services"
	"ephemera/internal/worker"
	"ephemera/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == "release" {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb := appredis.NewClient(appredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	rooms := services.NewRoomService(
		repository.NewRoomRepository(db),
		repository.NewDocumentRepository(db),
		appredis.NewRoomCache(rdb, cfg.RoomCacheTTL),
		cfg,
		l.Named("rooms"),
	)
	expire := worker.NewExpireHandler(rooms, appredis.NewRoomPresence(rdb, cfg.PresenceTTL), client, l.Named("expiry"))
	ws := worker.NewWorkerServer(redisOpt, cfg.WorkerConcurrency, cfg.ExpirySweepEvery, expire, l.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-quit:
		l.Infof("Quitting signal received, stopping worker")
	case err := <-errCh:
		if err != nil {
			l.Errorf("Worker exited with error: %s", err)
		}
	}
	ws.Shutdown()
}
