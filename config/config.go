package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	Store       string `env:"STORE"        envDefault:"postgres" validate:"oneof=postgres mysql memory"`
	DatabaseURL string `env:"DATABASE_URL"                       validate:"required_unless=Store memory"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	ResendAPIKey  string `env:"RESEND_API_KEY"      validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM"         validate:"required_if=Env production,required_if=Env staging"`
	MagicLinkBase string `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`

	LoginTokenTTLMin  int    `env:"LOGIN_TOKEN_TTL_MIN" envDefault:"30"        validate:"min=1,max=1440"`
	AuthTokenTTLMin   int    `env:"AUTH_TOKEN_TTL_MIN"  envDefault:"15"        validate:"min=1,max=525600"`
	CookieSecure      bool   `env:"COOKIE_SECURE"       envDefault:"true"`
	CleanupSchedule   string `env:"CLEANUP_SCHEDULE"    envDefault:"@every 1m" validate:"required,cronspec"`
	AllowRegistration bool   `env:"ALLOW_REGISTRATION"  envDefault:"false"`
	DefaultRedirect   string `env:"DEFAULT_REDIRECT"                           validate:"omitempty,startswith=/"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// robfig descriptors such as "@every 1m" fail the built-in cron tag
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LoginTTL() time.Duration {
	return time.Duration(c.LoginTokenTTLMin) * time.Minute
}

func (c *Config) AuthTTL() time.Duration {
	return time.Duration(c.AuthTokenTTLMin) * time.Minute
}

// VerifyURL is the link target embedded in login emails.
func (c *Config) VerifyURL() string {
	return strings.TrimRight(c.MagicLinkBase, "/") + "/auth/verify"
}
