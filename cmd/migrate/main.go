package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ephemera/config"
	"ephemera/internal/domain"
	"ephemera/internal/migrate"
	"ephemera/internal/repository"
	"ephemera/internal/services"
	"ephemera/pkg/logger"
)

const usage = `
ephemera - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply all pending migrations
  down        Roll back every migration
  status      Show applied state of each migration
  version     Print the current schema version
  seed-dev    Create a demo room and print its id and password
  reset       Roll back and re-apply all migrations (DANGEROUS)

Flags:
  -room-name string   Name of the demo room (default "demo")
  -room-pass string   Password of the demo room (default "demo")
  -room-ttl duration  Lifetime of the demo room (default 1h)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate seed-dev -room-ttl 10m
`

func main() {
	roomName := flag.String("room-name", "demo", "Name of the demo room")
	roomPass := flag.String("room-pass", "demo", "Password of the demo room")
	roomTTL := flag.Duration("room-ttl", time.Hour, "Lifetime of the demo room")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	ctx := context.Background()
	dsn := cfg.DSN()

	switch command := flag.Arg(0); command {
	case "up":
		log.Println("Running migrations up...")
		if err := migrate.Up(ctx, dsn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed")
	case "down":
		log.Println("Rolling back migrations...")
		if err := migrate.Down(ctx, dsn); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rollback completed")
	case "status":
		if err := migrate.Status(ctx, dsn); err != nil {
			log.Fatalf("Status failed: %v", err)
		}
	case "version":
		v, err := migrate.Version(ctx, dsn)
		if err != nil {
			log.Fatalf("Version failed: %v", err)
		}
		fmt.Println(v)
	case "seed-dev":
		seedDemoRoom(ctx, cfg, *roomName, *roomPass, *roomTTL)
	case "reset":
		log.Println("WARNING: this drops every table and re-applies migrations")
		if err := migrate.Down(ctx, dsn); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		if err := migrate.Up(ctx, dsn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database reset completed")
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func seedDemoRoom(ctx context.Context, cfg *config.Config, name, password string, ttl time.Duration) {
	db, err := repository.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rooms := services.NewRoomService(
		repository.NewRoomRepository(db),
		repository.NewDocumentRepository(db),
		nil,
		cfg,
		logger.Nop().Logger,
	)
	room, err := rooms.Create(ctx, services.CreateRoomInput{
		Name:     name,
		Password: password,
		Kind:     domain.RoomKindMixed,
		TTL:      ttl,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Demo room %q created: id=%s password=%q expires=%s", room.Name, room.ID, password, room.ExpiresAt.Format(time.RFC3339))
}
