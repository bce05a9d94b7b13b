// Package config is the environment-backed configuration loader used by the
// iamcore bootstrap (cmd/iamcore/main.go).
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration of the core.
type Config struct {
	// DatabaseDSN is the sqlite path or postgres DSN. IAMCORE_DATABASE_DSN.
	DatabaseDSN string

	// DefaultInstanceID scopes tokens without an instance claim.
	// IAMCORE_DEFAULT_INSTANCE.
	DefaultInstanceID string

	// ListenAddr is the admin HTTP listen address. IAMCORE_LISTEN_ADDR,
	// default :8080.
	ListenAddr string

	// JWTSecret signs and verifies admin tokens. IAMCORE_JWT_SECRET.
	JWTSecret string

	// KeeperURL opens the secrets keeper (see gocloud.dev/secrets). Only
	// needed by embedders that run the write side. IAMCORE_KEEPER_URL.
	KeeperURL string

	// KeyID names the active encryption key, recorded next to every
	// ciphertext. IAMCORE_KEY_ID, default "default".
	KeyID string

	// MachineID seeds the id generator. IAMCORE_MACHINE_ID, default 1.
	MachineID uint16

	// ProjectionBatchSize bounds one projection batch.
	// IAMCORE_PROJECTION_BATCH_SIZE, default 200.
	ProjectionBatchSize uint32

	// ProjectionPollInterval is the worker poll cadence.
	// IAMCORE_PROJECTION_POLL_INTERVAL, default 5s.
	ProjectionPollInterval time.Duration

	// KafkaBrokers enables the notification forwarder when non-empty.
	// IAMCORE_KAFKA_BROKERS, comma separated.
	KafkaBrokers []string

	// KafkaTopic is the notification topic. IAMCORE_KAFKA_TOPIC, default
	// "iamcore.events".
	KafkaTopic string
}

// LoadFromEnv reads the configuration from environment variables, applies
// defaults, and validates the required values.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseDSN:       os.Getenv("IAMCORE_DATABASE_DSN"),
		DefaultInstanceID: os.Getenv("IAMCORE_DEFAULT_INSTANCE"),
		ListenAddr:        os.Getenv("IAMCORE_LISTEN_ADDR"),
		JWTSecret:         os.Getenv("IAMCORE_JWT_SECRET"),
		KeeperURL:         os.Getenv("IAMCORE_KEEPER_URL"),
		KeyID:             os.Getenv("IAMCORE_KEY_ID"),
		KafkaTopic:        os.Getenv("IAMCORE_KAFKA_TOPIC"),

		MachineID:              1,
		ProjectionBatchSize:    200,
		ProjectionPollInterval: 5 * time.Second,
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.KeyID == "" {
		cfg.KeyID = "default"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "iamcore.events"
	}

	if v := os.Getenv("IAMCORE_MACHINE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, errors.New("IAMCORE_MACHINE_ID must be an integer between 0 and 65535")
		}
		cfg.MachineID = uint16(id)
	}
	if v := os.Getenv("IAMCORE_PROJECTION_BATCH_SIZE"); v != "" {
		size, err := strconv.ParseUint(v, 10, 32)
		if err != nil || size == 0 {
			return nil, errors.New("IAMCORE_PROJECTION_BATCH_SIZE must be a positive integer")
		}
		cfg.ProjectionBatchSize = uint32(size)
	}
	if v := os.Getenv("IAMCORE_PROJECTION_POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil || interval <= 0 {
			return nil, errors.New("IAMCORE_PROJECTION_POLL_INTERVAL must be a positive duration")
		}
		cfg.ProjectionPollInterval = interval
	}
	if v := os.Getenv("IAMCORE_KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if cfg.DatabaseDSN == "" {
		return nil, errors.New("IAMCORE_DATABASE_DSN is required")
	}
	if cfg.DefaultInstanceID == "" {
		return nil, errors.New("IAMCORE_DEFAULT_INSTANCE is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("IAMCORE_JWT_SECRET is required")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether the Kafka forwarder should run.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
