package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the service.
type Config struct {
	// Postgres DSN. Required for the api binary; tests run against fakes.
	DatabaseDSN string `env:"OPSTRACK_PG_DSN"`

	// HS256 signing secret for bearer tokens. Required.
	TokenSecret string `env:"OPSTRACK_TOKEN_SECRET"`

	// Issuer claim embedded in every token.
	TokenIssuer string `env:"OPSTRACK_TOKEN_ISSUER" envDefault:"opstrack"`

	// Bearer token lifetime.
	TokenTTL time.Duration `env:"OPSTRACK_TOKEN_TTL" envDefault:"12h"`

	// Lifetime of a login challenge nonce.
	ChallengeTTL time.Duration `env:"OPSTRACK_CHALLENGE_TTL" envDefault:"2m"`

	// Audit batching.
	AuditBatchSize    int           `env:"OPSTRACK_AUDIT_BATCH_SIZE" envDefault:"50"`
	AuditMaxBufferAge time.Duration `env:"OPSTRACK_AUDIT_MAX_BUFFER_AGE" envDefault:"30s"`
	AuditFlushTimeout time.Duration `env:"OPSTRACK_AUDIT_FLUSH_TIMEOUT" envDefault:"5s"`

	// Retention horizons for the maintenance sweeper.
	SessionRetention time.Duration `env:"OPSTRACK_SESSION_RETENTION" envDefault:"720h"`
	AuditRetention   time.Duration `env:"OPSTRACK_AUDIT_RETENTION" envDefault:"2160h"`
	SweepInterval    time.Duration `env:"OPSTRACK_SWEEP_INTERVAL" envDefault:"1h"`

	// Bounded in-memory caches.
	RevocationCacheSize int `env:"OPSTRACK_REVOCATION_CACHE_SIZE" envDefault:"4096"`
	PermissionCacheSize int `env:"OPSTRACK_PERMISSION_CACHE_SIZE" envDefault:"8192"`

	// Listen address for the metrics/health endpoint.
	ListenAddr string `env:"OPSTRACK_LISTEN_ADDR" envDefault:":8080"`
}

// Load reads configuration from the environment, consulting a .env file
// first when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenSecret == "" {
		return errors.New("OPSTRACK_TOKEN_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("OPSTRACK_TOKEN_TTL must be positive")
	}
	if c.AuditBatchSize <= 0 {
		return errors.New("OPSTRACK_AUDIT_BATCH_SIZE must be positive")
	}
	return nil
}
