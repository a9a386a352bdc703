package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAppName         = "accountant"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultLedgerBackend   = "memory"
	defaultLedgerTTL       = time.Hour
	defaultWorkers         = 1
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultMaxBatchBytes   = 32 << 20
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	ledgerTTLEnvVar        = "LEDGER_TTL"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config captures runtime configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	AppName        string        `yaml:"app_name"`
	AppEnv         string        `yaml:"app_env"`
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	LogFile        string        `yaml:"log_file"`
	LedgerBackend  string        `yaml:"ledger_backend"`
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	LedgerTTL      time.Duration `yaml:"ledger_ttl"`
	Workers        int           `yaml:"workers"`
	ShutdownPeriod time.Duration `yaml:"shutdown_timeout"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	APITokenHash   string        `yaml:"api_token_hash"`
	MaxBatchBytes  int           `yaml:"max_batch_bytes"`
	BatchRateLimit int           `yaml:"batch_rate_limit"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		AppName:        defaultAppName,
		AppEnv:         defaultAppEnv,
		Port:           defaultPort,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		LedgerBackend:  defaultLedgerBackend,
		LedgerTTL:      defaultLedgerTTL,
		Workers:        defaultWorkers,
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		MaxBatchBytes:  defaultMaxBatchBytes,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty) and the environment. The result is not validated; callers apply
// their own overrides and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LedgerBackend = strings.ToLower(cfg.LedgerBackend)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.AppName = getEnv("APP_NAME", c.AppName)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LedgerBackend = getEnv("LEDGER_BACKEND", c.LedgerBackend)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.APITokenHash = getEnv("API_TOKEN_HASH", c.APITokenHash)

	if err := intEnv("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := intEnv("MAX_BATCH_BYTES", &c.MaxBatchBytes); err != nil {
		return err
	}
	if err := intEnv("BATCH_RATE_LIMIT", &c.BatchRateLimit); err != nil {
		return err
	}
	if err := durationEnv("", ledgerTTLEnvVar, &c.LedgerTTL); err != nil {
		return err
	}
	if err := durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, &c.ShutdownPeriod); err != nil {
		return err
	}
	return durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, &c.IdempotencyTTL)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.LedgerBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL must be set for the redis ledger", ErrInvalid)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL must be set for the postgres ledger", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown ledger backend %q", ErrInvalid, c.LedgerBackend)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.MaxBatchBytes <= 0 {
		return fmt.Errorf("%w: max_batch_bytes must be positive", ErrInvalid)
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// durationEnv reads whole seconds from secondsKey, falling back to a Go
// duration string in durationKey.
func durationEnv(secondsKey, durationKey string, dst *time.Duration) error {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			*dst = time.Duration(seconds) * time.Second
			return nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		*dst = d
	}
	return nil
}
