package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ephemera/config"
	"ephemera/internal/handler"
	"ephemera/internal/middleware"
	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
	"ephemera/internal/websocket"
	"ephemera/pkg/logger"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Rooms        *handler.RoomHandler
	Participants *handler.ParticipantHandler
	Messages     *handler.MessageHandler
	Documents    *handler.DocumentHandler
	Channel      *websocket.Handler
	// Roster re-checks membership before writes. Nil skips the check.
	Roster       middleware.Admitter
}

// HealthCheck pings one dependency. /health fails if any check fails.
type HealthCheck func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, checks map[string]HealthCheck) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.MetricsMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(name+": "+err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pass := middleware.RoomPassMiddleware(authService)
	member := func(c *gin.Context) { c.Next() }
	if handlers.Roster != nil {
		member = middleware.RosterMemberMiddleware(handlers.Roster)
	}

	rooms := s.engine.Group("/v1/rooms")
	{
		rooms.POST("", handlers.Rooms.Create)
		rooms.GET("/:roomID", handlers.Rooms.Get)
		rooms.POST("/:roomID/verify", handlers.Rooms.Verify)

		rooms.POST("/:roomID/participants", handlers.Participants.Join)
		rooms.GET("/:roomID/participants", pass, handlers.Participants.List)
		rooms.PUT("/:roomID/participants/:username/presence", pass, handlers.Participants.SetPresence)
		rooms.POST("/:roomID/participants/:username/kick", pass, handlers.Participants.Kick)
		rooms.DELETE("/:roomID/participants/:username", pass, handlers.Participants.Leave)

		rooms.GET("/:roomID/messages", pass, handlers.Messages.List)
		rooms.POST("/:roomID/messages", pass, handlers.Messages.Append)

		rooms.GET("/:roomID/documents/:name", pass, handlers.Documents.Get)
		rooms.POST("/:roomID/documents", pass, member, handlers.Documents.Create)

		rooms.GET("/:roomID/channel", handlers.Channel.Connect)
	}

	docs := s.engine.Group("/v1/documents", pass, member)
	{
		docs.PATCH("/:documentID", handlers.Documents.Update)
		docs.DELETE("/:documentID", handlers.Documents.Delete)
	}
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case <-quit:
		if s.logger != nil {
			s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
		}
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
