// Package config builds process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Redis captures connection settings for the optional membership cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is everything the gateway reads at startup.
type Config struct {
	Addr             string
	BackendBaseURL   string
	BackendTimeout   time.Duration
	TenantHeader     string
	ErrorsProcessing string
	MaxHops          int

	Redis              Redis
	MembershipCacheTTL time.Duration
	PostgresURL        string

	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv reads the environment. Unset values fall back to development
// defaults; the backend URL is the only setting with no sensible default.
func FromEnv() Config {
	return Config{
		Addr:             envOr("OAI_EDGE_ADDR", ":8080"),
		BackendBaseURL:   envOr("OAI_EDGE_BACKEND_URL", "http://localhost:9130"),
		BackendTimeout:   envDuration("OAI_EDGE_BACKEND_TIMEOUT", 30*time.Second),
		TenantHeader:     envOr("OAI_EDGE_TENANT_HEADER", "X-Okapi-Tenant"),
		ErrorsProcessing: envOr("OAI_EDGE_ERRORS_PROCESSING", "500"),
		MaxHops:          envInt("OAI_EDGE_MAX_HOPS", 50),

		Redis: Redis{
			URL:          os.Getenv("OAI_EDGE_REDIS_URL"),
			PoolSize:     envInt("OAI_EDGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("OAI_EDGE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("OAI_EDGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("OAI_EDGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("OAI_EDGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		MembershipCacheTTL: envDuration("OAI_EDGE_MEMBERSHIP_TTL", 30*time.Second),
		PostgresURL:        os.Getenv("OAI_EDGE_POSTGRES_URL"),

		KafkaBrokers: envList("OAI_EDGE_KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("OAI_EDGE_KAFKA_TOPIC"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
