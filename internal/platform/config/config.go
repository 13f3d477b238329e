// Package config builds the immutable process configuration from environment
// variables so main stays lean.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Security captures the security posture knobs. Immutable after construction.
type Security struct {
	SessionTimeout               time.Duration
	MaxInactivity                time.Duration
	RequireReauthForSensitiveOps bool
	AuditEnabled                 bool
}

// Redis captures Redis connection settings. An empty URL disables Redis and
// the process falls back to in-memory stores.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit forwarding settings. Empty brokers disable forwarding.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full process configuration.
type Config struct {
	Addr                 string
	PostgresDSN          string
	VectorKeyHex         string
	BearerSigningKey     string
	DefaultTokenTTLMin   int
	TokenSweepInterval   time.Duration
	SessionCheckInterval time.Duration
	Security             Security
	Redis                Redis
	Kafka                Kafka
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:                 envOr("MEDID_ADDR", ":8080"),
		PostgresDSN:          os.Getenv("MEDID_POSTGRES_DSN"),
		VectorKeyHex:         os.Getenv("MEDID_VECTOR_KEY"),
		BearerSigningKey:     envOr("MEDID_BEARER_KEY", "dev-secret-key-change-in-production-32b"),
		DefaultTokenTTLMin:   envInt("MEDID_TOKEN_TTL_MINUTES", 30),
		TokenSweepInterval:   envDuration("MEDID_TOKEN_SWEEP_INTERVAL", 60*time.Second),
		SessionCheckInterval: envDuration("MEDID_SESSION_CHECK_INTERVAL", 60*time.Second),
		Security: Security{
			SessionTimeout:               envDuration("MEDID_SESSION_TIMEOUT", 8*time.Hour),
			MaxInactivity:                envDuration("MEDID_MAX_INACTIVITY", 15*time.Minute),
			RequireReauthForSensitiveOps: os.Getenv("MEDID_REQUIRE_REAUTH") == "true",
			AuditEnabled:                 os.Getenv("MEDID_AUDIT_DISABLED") != "true",
		},
		Redis: Redis{
			URL:          os.Getenv("MEDID_REDIS_URL"),
			PoolSize:     envInt("MEDID_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MEDID_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("MEDID_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MEDID_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MEDID_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Topic: envOr("MEDID_KAFKA_AUDIT_TOPIC", "medid.audit"),
		},
	}
	if brokers := os.Getenv("MEDID_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	return cfg
}

// VectorKey decodes the hex-encoded 32-byte vector encryption key. An unset
// key returns nil and the caller generates an ephemeral one (dev mode).
func (c Config) VectorKey() ([]byte, error) {
	if c.VectorKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.VectorKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode vector key: %w", err)
	}
	return key, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
