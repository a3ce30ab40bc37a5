package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("EXPIRY_SWEEP_EVERY", "not-a-duration")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, 30*time.Second, cfg.ExpirySweepEvery)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, time.Hour, cfg.DefaultRoomTTL)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "5433", DBName: "rooms"}
	assert.Equal(t, "postgres://u:p@db:5433/rooms?sslmode=disable&timezone=UTC", cfg.DSN())

	cfg.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}
