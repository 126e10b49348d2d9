package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all service configuration, one struct per concern.
type Config struct {
	Server      Server
	Postgres    Postgres
	Redis       Redis
	Kafka       Kafka
	Catalog     Catalog
	Recognition Recognition
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	MediatorSecret string
}

// Postgres selects the durable store. An empty DSN falls back to in-memory
// stores, which is the local development default.
type Postgres struct {
	DSN string
}

// Redis configures the optional species catalog read-through cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the identity event feed and recognition request dispatch.
// Empty Brokers disables both: the in-process feed and a log-only dispatcher
// take over.
type Kafka struct {
	Brokers          []string
	GroupID          string
	IdentityTopic    string
	RecognitionTopic string
}

// Catalog points at the external species reference catalog.
type Catalog struct {
	BaseURL  string
	CacheTTL time.Duration
}

// Recognition holds the mediator deadline policy. A zero Timeout disables the
// analyzing sweeper entirely.
type Recognition struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

// FromEnv builds the full configuration from environment variables so main
// stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:           envOr("FIELDBOOK_ADDR", ":8080"),
			JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			MediatorSecret: envOr("MEDIATOR_SHARED_SECRET", "dev-mediator-secret"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:          splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			GroupID:          envOr("KAFKA_GROUP_ID", "fieldbook-server"),
			IdentityTopic:    envOr("KAFKA_IDENTITY_TOPIC", "fieldbook.identity.events"),
			RecognitionTopic: envOr("KAFKA_RECOGNITION_TOPIC", "fieldbook.recognition.requests"),
		},
		Catalog: Catalog{
			BaseURL:  envOr("SPECIES_CATALOG_URL", "http://localhost:9090"),
			CacheTTL: envDurationOr("SPECIES_CATALOG_CACHE_TTL", 15*time.Minute),
		},
		Recognition: Recognition{
			Timeout:       envDurationOr("RECOGNITION_TIMEOUT", 2*time.Minute),
			SweepInterval: envDurationOr("RECOGNITION_SWEEP_INTERVAL", 15*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
