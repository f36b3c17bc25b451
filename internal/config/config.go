// Package config loads runtime settings from SAGAFLOW_* environment variables,
// optionally layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server and CLI commands need to wire an engine.
type Config struct {
	HTTPAddr  string `yaml:"http_addr" env:"SAGAFLOW_HTTP_ADDR"`
	Templates string `yaml:"templates" env:"SAGAFLOW_TEMPLATES"`
	Catalog   string `yaml:"catalog" env:"SAGAFLOW_CATALOG"`
	Commands  string `yaml:"commands" env:"SAGAFLOW_COMMANDS"`

	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	OTel     OTelConfig     `yaml:"otel"`

	AsyncDispatch bool `yaml:"async_dispatch" env:"SAGAFLOW_ASYNC_DISPATCH"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"SAGAFLOW_LOG_LEVEL"`
	Format string `yaml:"format" env:"SAGAFLOW_LOG_FORMAT"`
}

// RedisConfig enables the Redis store, locker and streams when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"SAGAFLOW_REDIS_ADDR"`
	Password string        `yaml:"password" env:"SAGAFLOW_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"SAGAFLOW_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"SAGAFLOW_REDIS_TTL"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"SAGAFLOW_LOCK_TTL"`

	EventStream    string `yaml:"event_stream" env:"SAGAFLOW_EVENT_STREAM"`
	EventStreamLen int64  `yaml:"event_stream_len" env:"SAGAFLOW_EVENT_STREAM_LEN"`
	CommandPrefix  string `yaml:"command_prefix" env:"SAGAFLOW_COMMAND_PREFIX"`

	// Inbound domain events consumed through a consumer group. Empty disables the consumer.
	InboundStream string `yaml:"inbound_stream" env:"SAGAFLOW_INBOUND_STREAM"`
	ConsumerGroup string `yaml:"consumer_group" env:"SAGAFLOW_CONSUMER_GROUP"`
	ConsumerName  string `yaml:"consumer_name" env:"SAGAFLOW_CONSUMER_NAME"`
}

// SnapshotConfig protects snapshots written to the store.
type SnapshotConfig struct {
	// EncryptionKey is a base64 AES-256 key. Empty stores snapshots in the clear.
	EncryptionKey string   `yaml:"encryption_key" env:"SAGAFLOW_ENCRYPTION_KEY"`
	FallbackKeys  []string `yaml:"fallback_keys" env:"SAGAFLOW_ENCRYPTION_FALLBACK_KEYS" envSeparator:","`
	// Redact lists regular expressions; matching context keys are masked.
	Redact []string `yaml:"redact" env:"SAGAFLOW_REDACT" envSeparator:","`
}

// OTelConfig controls trace export.
type OTelConfig struct {
	Enabled     bool    `yaml:"enabled" env:"SAGAFLOW_OTEL_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"SAGAFLOW_OTEL_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"SAGAFLOW_OTEL_INSECURE"`
	ServiceName string  `yaml:"service_name" env:"SAGAFLOW_OTEL_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAGAFLOW_OTEL_SAMPLE_RATIO"`
}

// RedisEnabled reports whether a Redis address was configured.
func (c Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Default returns the settings used when neither a file nor the environment sets them.
func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		Templates: "./sagas",
		Log:       LogConfig{Level: "info", Format: "text"},
		Redis: RedisConfig{
			LockTTL:        10 * time.Second,
			EventStream:    "sagaflow:events",
			EventStreamLen: 10000,
			CommandPrefix:  "sagaflow:commands:",
			ConsumerGroup:  "sagaflow",
			ConsumerName:   "sagaflow-1",
		},
		OTel: OTelConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "sagaflow",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path when
// given, then any SAGAFLOW_* variables present in the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be wired.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	if c.Redis.LockTTL < 0 || c.Redis.TTL < 0 {
		return errors.New("redis ttls must not be negative")
	}
	if len(c.Snapshot.FallbackKeys) > 0 && c.Snapshot.EncryptionKey == "" {
		return errors.New("fallback keys require an encryption key")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel sample ratio %v out of range [0,1]", c.OTel.SampleRatio)
	}
	return nil
}
