// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig covers the sqlite file.
type DatabaseConfig struct {
	Path string
}

// JWTConfig covers access token signing.
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// JobsConfig covers the upstream job seeding.
type JobsConfig struct {
	UpstreamURL string
	SeedOnStart bool
}

// RateLimitConfig covers per-IP throttling of the auth routes.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig covers the slog handler.
type LoggingConfig struct {
	Level string
}

// Load reads the configuration from a .env file (if present) and the
// environment, applying development defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtTTL := 24 * time.Hour
	if raw := os.Getenv("JWT_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		jwtTTL = parsed
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnv("HOST", "0.0.0.0"),
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "entsync.db"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			TTL:    jwtTTL,
		},
		Jobs: JobsConfig{
			UpstreamURL: getEnv("JOBS_UPSTREAM_URL", "https://jobs-api14.p.rapidapi.com/list"),
			SeedOnStart: getEnvAsBool("SEED_ON_START", true),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// SlogLevel maps the configured level name to a slog level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
