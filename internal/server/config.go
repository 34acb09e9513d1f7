package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port            string
	AllowedOrigins  []string
	DatabaseURL     string
	DBPath          string
	RedisAddr       string
	ShutdownTimeout time.Duration
	MaxMessageSize  int64
}

const (
	defaultPort            = "8080"
	defaultAllowedOrigin   = "*"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxMessageSize  = int64(1 << 20) // 1 MiB, bounds drawing point lists
)

// LoadConfig builds a Config instance using environment variables when present.
// DATABASE_URL selects the postgres store, DB_PATH the sqlite one; with
// neither set the server runs on the in-memory store. REDIS_ADDR enables the
// cross-instance presence bus.
func LoadConfig() Config {
	cfg := Config{
		Port:            getEnv("PORT", defaultPort),
		AllowedOrigins:  parseAllowedOrigins(getEnv("ALLOWED_ORIGINS", defaultAllowedOrigin)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBPath:          os.Getenv("DB_PATH"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		ShutdownTimeout: defaultShutdownTimeout,
		MaxMessageSize:  defaultMaxMessageSize,
	}

	if raw := os.Getenv("SHUTDOWN_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		}
	}
	if raw := os.Getenv("MAX_MESSAGE_SIZE"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			cfg.MaxMessageSize = v
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	var origins []string
	for _, origin := range parts {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{defaultAllowedOrigin}
	}
	return origins
}
