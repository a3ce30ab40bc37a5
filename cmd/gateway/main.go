package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"ephemera/config"
	"ephemera/internal/handler"
	"ephemera/internal/migrate"
	appredis "ephemera/internal/redis"
	"ephemera/internal/repository"
	"ephemera/internal/server"
	"ephemera/internal/services"
	"ephemera/internal/websocket"
	"ephemera/pkg/logger"
)

func main() {
	autoMigrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *autoMigrate {
		if err := migrate.Up(ctx, cfg.DSN()); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	db, err := repository.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb := appredis.NewClient(appredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := appredis.Ping(ctx, rdb); err != nil {
		l.Warnf("Redis is not reachable yet: %s", err)
	}

	roomRepo := repository.NewRoomRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	publisher := appredis.NewPublisher(rdb)
	roomCache := appredis.NewRoomCache(rdb, cfg.RoomCacheTTL)
	roomPresence := appredis.NewRoomPresence(rdb, cfg.PresenceTTL)

	authService := services.NewAuthService(cfg)
	roomService := services.NewRoomService(roomRepo, documentRepo, roomCache, cfg, l.Named("rooms"))
	participantService := services.NewParticipantService(roomService, authService, participantRepo, publisher, l.Named("participants"))
	messageService := services.NewMessageService(roomService, participantRepo, messageRepo, publisher, l.Named("messages"))
	documentService := services.NewDocumentService(roomService, documentRepo, l.Named("documents"))

	wsLogger := websocket.NewWebSocketLogger(l.Named("websocket"))
	hub := websocket.NewHub(websocket.NewPresence(roomPresence, participantService, wsLogger), wsLogger)
	go hub.Run(ctx)

	bridge := websocket.NewRedisBridge(appredis.NewSubscriber(rdb, l.Named("room_subscriber")), hub)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			l.Logger.Error("redis bridge stopped", zap.Error(err))
		}
	}()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Rooms:        handler.NewRoomHandler(roomService),
		Participants: handler.NewParticipantHandler(participantService),
		Messages:     handler.NewMessageHandler(messageService),
		Documents:    handler.NewDocumentHandler(documentService),
		Channel:      websocket.NewHandler(authService, participantService, hub, publisher, wsLogger),
		Roster:       participantService,
	}, authService, map[string]server.HealthCheck{
		"postgres": db.Ping,
		"redis": func(ctx context.Context) error {
			return appredis.Ping(ctx, rdb)
		},
	})

	if err := srv.Start(ctx); err != nil {
		l.Errorf("Server exited with error: %s", err)
	}
	l.Logger.Info("gateway stopped", zap.Int("open_connections", hub.ClientCount()))
}
