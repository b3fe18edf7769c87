// Package config loads daemon configuration from STELLARPAY_* environment
// variables and an optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every variable.
const EnvPrefix = "STELLARPAY_"

// Config holds server configuration.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DataDir         string        `env:"DATA_DIR" envDefault:"data"`

	// Store selects the proposal store: memory, file, sqlite or postgres.
	Store       string `env:"STORE" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Ledger selects the transfer backend: memory or postgres.
	Ledger             string           `env:"LEDGER" envDefault:"memory"`
	Custodian          string           `env:"CUSTODIAN" envDefault:"treasury"`
	Fund               map[string]int64 `env:"FUND"` // ASSET:AMOUNT pairs credited to the custodian at start
	TransferRetries    uint             `env:"TRANSFER_RETRIES" envDefault:"3"`
	TransferRetryDelay time.Duration    `env:"TRANSFER_RETRY_DELAY" envDefault:"200ms"`

	RequiredApprovals uint32 `env:"REQUIRED_APPROVALS" envDefault:"2"`
	MaxPayees         int    `env:"MAX_PAYEES" envDefault:"0"`
	PolicyFile        string `env:"POLICY_FILE"`

	// AuthMode is none, jwt or signature.
	AuthMode string `env:"AUTH_MODE" envDefault:"none"`
	// JWTSeed is the hex Ed25519 seed shared by the daemon and the token command.
	JWTSeed  string `env:"JWT_SEED"`
	JWTKeyID string `env:"JWT_KID" envDefault:"seed-0"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	Lock          string        `env:"LOCK" envDefault:"local"` // local or redis
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	// Replay is where signed requests are remembered: local or redis.
	Replay        string        `env:"REPLAY" envDefault:"local"`
	ReplayTTL     time.Duration `env:"REPLAY_TTL" envDefault:"24h"`
	Events        []string      `env:"EVENTS" envDefault:"log" envSeparator:","` // log, redis
	EventsChannel string        `env:"EVENTS_CHANNEL" envDefault:"stellar-pay:events"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	Archive   ArchiveConfig   `envPrefix:"ARCHIVE_"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_"`

	policy *PolicyFile
}

// ArchiveConfig selects where execution receipts are archived.
type ArchiveConfig struct {
	Backend    string `env:"BACKEND" envDefault:"none"` // none, fs, s3, gcs
	Dir        string `env:"DIR"`
	S3Bucket   string `env:"S3_BUCKET"`
	S3Region   string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint string `env:"S3_ENDPOINT"`
	S3Prefix   string `env:"S3_PREFIX"`
	GCSBucket  string `env:"GCS_BUCKET"`
	GCSPrefix  string `env:"GCS_PREFIX"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `env:"ENABLED" envDefault:"false"`
	Endpoint    string  `env:"ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"INSECURE" envDefault:"false"`
	SampleRate  float64 `env:"SAMPLE_RATE" envDefault:"1.0"`
	Environment string  `env:"ENVIRONMENT" envDefault:"development"`
}

// Load parses the environment, loads the policy file if configured and validates.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PolicyFile != "" {
		pf, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.policy = pf
		if pf.MaxPayees > 0 {
			cfg.MaxPayees = pf.MaxPayees
		}
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = filepath.Join(cfg.DataDir, "receipts")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum values and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s%s=%q: want one of %s", EnvPrefix, field, v, strings.Join(allowed, ", ")))
	}

	oneOf("STORE", c.Store, "memory", "file", "sqlite", "postgres")
	oneOf("LEDGER", c.Ledger, "memory", "postgres")
	oneOf("AUTH_MODE", c.AuthMode, "none", "jwt", "signature")
	oneOf("LOCK", c.Lock, "local", "redis")
	oneOf("REPLAY", c.Replay, "local", "redis")
	oneOf("LOG_FORMAT", c.LogFormat, "text", "json")
	oneOf("ARCHIVE_BACKEND", c.Archive.Backend, "none", "fs", "s3", "gcs")
	for _, e := range c.Events {
		oneOf("EVENTS", e, "log", "redis")
	}

	if (c.Store == "postgres" || c.Ledger == "postgres") && c.DatabaseURL == "" {
		errs = append(errs, errors.New(EnvPrefix+"DATABASE_URL is required for postgres"))
	}
	if c.AuthMode == "jwt" && c.JWTSeed == "" {
		errs = append(errs, errors.New(EnvPrefix+"JWT_SEED is required for jwt auth"))
	}
	if c.wantsRedis() && c.RedisAddr == "" {
		errs = append(errs, errors.New(EnvPrefix+"REDIS_ADDR is required for redis locking, replay or events"))
	}
	if c.Archive.Backend == "s3" && c.Archive.S3Bucket == "" {
		errs = append(errs, errors.New(EnvPrefix+"ARCHIVE_S3_BUCKET is required for s3 archive"))
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		errs = append(errs, errors.New(EnvPrefix+"ARCHIVE_GCS_BUCKET is required for gcs archive"))
	}
	if c.RequiredApprovals == 0 {
		errs = append(errs, errors.New(EnvPrefix+"REQUIRED_APPROVALS must be at least 1"))
	}
	if c.MaxPayees < 0 {
		errs = append(errs, errors.New(EnvPrefix+"MAX_PAYEES must not be negative"))
	}
	if c.Custodian == "" {
		errs = append(errs, errors.New(EnvPrefix+"CUSTODIAN must not be empty"))
	}
	for asset, amount := range c.Fund {
		if amount <= 0 {
			errs = append(errs, fmt.Errorf("%sFUND: %s amount must be positive", EnvPrefix, asset))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) wantsRedis() bool {
	if c.Lock == "redis" || c.Replay == "redis" {
		return true
	}
	for _, e := range c.Events {
		if e == "redis" {
			return true
		}
	}
	return false
}

// Policy returns the loaded policy file, nil when none is configured.
func (c *Config) Policy() *PolicyFile { return c.policy }

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
