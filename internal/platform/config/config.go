// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the migration gateway.
type Server struct {
	Addr string

	// PostgresURL selects the durable registry/WAL backend. Empty means the
	// in-memory stores, which only survive for the life of the process and
	// cannot be the sole source of truth across restarts.
	PostgresURL string

	Redis RedisConfig

	// KafkaBrokers selects Kafka as the WAL replay feed. Empty falls back
	// to the Redis queue feed, or no feed at all when Redis is also absent.
	KafkaBrokers []string

	// CallTimeout is the uniform per-call budget applied to every external
	// collaborator invocation and public HTTP request.
	CallTimeout time.Duration

	// ShutdownTimeout bounds graceful drain on SIGINT.
	ShutdownTimeout time.Duration
}

// RedisConfig configures the saga state store and the WAL replay queue feed.
// An empty URL disables both; saga state then lives in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("POLICYBRIDGE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Server{
		Addr:        addr,
		PostgresURL: os.Getenv("POLICYBRIDGE_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("POLICYBRIDGE_REDIS_URL"),
			PoolSize:     envInt("POLICYBRIDGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("POLICYBRIDGE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("POLICYBRIDGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("POLICYBRIDGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("POLICYBRIDGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers:    envList("POLICYBRIDGE_KAFKA_BROKERS"),
		CallTimeout:     envDuration("POLICYBRIDGE_CALL_TIMEOUT", 30*time.Second),
		ShutdownTimeout: envDuration("POLICYBRIDGE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
