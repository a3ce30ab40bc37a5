package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	DefaultRoomTTL    time.Duration
	MaxRoomTTL        time.Duration
	ExpirySweepEvery  time.Duration
	PresenceTTL       time.Duration
	RoomCacheTTL      time.Duration
	WorkerConcurrency int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:           getEnv("APP_PORT", "8080"),
		AppMode:           getEnv("APP_MODE", "debug"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "ephemera"),
		DBPort:            getEnv("DB_PORT", "5432"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		JWTSecret:         getEnv("JWT_SECRET", "change-me"),
		DefaultRoomTTL:    getEnvAsDuration("DEFAULT_ROOM_TTL", time.Hour),
		MaxRoomTTL:        getEnvAsDuration("MAX_ROOM_TTL", 24*time.Hour),
		ExpirySweepEvery:  getEnvAsDuration("EXPIRY_SWEEP_EVERY", 30*time.Second),
		PresenceTTL:       getEnvAsDuration("PRESENCE_TTL", 5*time.Minute),
		RoomCacheTTL:      getEnvAsDuration("ROOM_CACHE_TTL", time.Minute),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 2),
	}
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&timezone=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
