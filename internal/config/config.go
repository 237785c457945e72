// Package config loads service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	envProduction = "production"

	// devPepper keeps local development working without secrets management.
	// Load rejects it outside development.
	devPepper = "screener-dev-pepper-not-for-production"
)

// Config holds every recognized environment option.
type Config struct {
	Env      string `env:"SCREENER_ENV, default=development"`
	Addr     string `env:"SCREENER_ADDR, default=:8080"`
	LogLevel string `env:"SCREENER_LOG_LEVEL, default=info"`

	PostgresDSN string `env:"SCREENER_PG_DSN"`
	RedisAddr   string `env:"SCREENER_REDIS_ADDR"`

	SessionCookieName string        `env:"SCREENER_SESSION_COOKIE, default=screener_session"`
	CSRFCookieName    string        `env:"SCREENER_CSRF_COOKIE, default=screener_csrf"`
	SessionTTL        time.Duration `env:"SCREENER_SESSION_TTL, default=24h"`
	CookieSecure      bool          `env:"SCREENER_COOKIE_SECURE, default=true"`

	BcryptCost  int    `env:"SCREENER_BCRYPT_COST, default=12"`
	TokenPepper string `env:"SCREENER_TOKEN_PEPPER"`

	LoginMaxFailures int           `env:"SCREENER_LOGIN_MAX_FAILURES, default=8"`
	LoginWindow      time.Duration `env:"SCREENER_LOGIN_WINDOW, default=10m"`

	HTTPRateBurst  int `env:"SCREENER_HTTP_RATE_BURST, default=20"`
	HTTPRatePerSec int `env:"SCREENER_HTTP_RATE_PER_SEC, default=10"`

	SeedAdminEmail    string `env:"SCREENER_SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `env:"SCREENER_SEED_ADMIN_PASSWORD"`
}

// Load reads and validates configuration. The token pepper is mandatory in
// production; development falls back to a fixed value so local setups work
// without secrets.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Env = strings.TrimSpace(strings.ToLower(cfg.Env))

	if strings.TrimSpace(cfg.TokenPepper) == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: SCREENER_TOKEN_PEPPER is required in production")
		}
		cfg.TokenPepper = devPepper
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("config: session TTL must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("config: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if cfg.LoginMaxFailures <= 0 {
		return nil, errors.New("config: login failure threshold must be positive")
	}
	if cfg.LoginWindow <= 0 {
		return nil, errors.New("config: login window must be positive")
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Env == envProduction
}
