// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the HMAC signing secret for session and reset tokens. Required.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "genflow-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// SessionTTL is the session token lifetime (e.g. "168h" for 7 days).
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// ResetTokenTTL is the password-reset token lifetime (e.g. "1h").
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RateLimitWindow is the fixed window for auth attempt limiting (e.g. "1m").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitMax is the number of attempts allowed per window per client.
	RateLimitMax int `mapstructure:"RATE_LIMIT_MAX"`
	// CacheTimeout bounds calls to the advisory cache/limiter backend (e.g. "250ms").
	CacheTimeout string `mapstructure:"CACHE_TIMEOUT"`
	// StoreTimeout bounds calls to the durable stores (e.g. "5s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`
	// RequireVerifiedEmail gates login on a verified email address. Off by
	// default: registration currently auto-verifies.
	RequireVerifiedEmail bool `mapstructure:"REQUIRE_VERIFIED_EMAIL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "genflow-auth")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_MAX", 5)
	v.SetDefault("CACHE_TIMEOUT", "250ms")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("REQUIRE_VERIFIED_EMAIL", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, errors.New("config: RATE_LIMIT_MAX must be positive")
	}

	return &cfg, nil
}

// SessionTokenTTL parses SessionTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) SessionTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// ResetTTL parses ResetTokenTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	d, err := time.ParseDuration(c.ResetTokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// AttemptWindow parses RateLimitWindow as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) AttemptWindow() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// CacheCallTimeout parses CacheTimeout as a time.Duration. Returns 250ms if unset or invalid.
func (c *Config) CacheCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.CacheTimeout)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// StoreCallTimeout parses StoreTimeout as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.StoreTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
