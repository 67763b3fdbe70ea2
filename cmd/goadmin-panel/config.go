package main

import (
	"fmt"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from GOADMIN_* environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"goadmin"`

	ProfileBackend string `envconfig:"PROFILE_BACKEND" default:"redis"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	IdentityBackend string        `envconfig:"IDENTITY_BACKEND" default:"redis"`
	SessionSecret   string        `envconfig:"SESSION_SECRET"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	KratosPublicURL string        `envconfig:"KRATOS_PUBLIC_URL"`
	KratosAdminURL  string        `envconfig:"KRATOS_ADMIN_URL"`

	SignInMaxAttempts int           `envconfig:"SIGNIN_MAX_ATTEMPTS" default:"10"`
	SignInCooldown    time.Duration `envconfig:"SIGNIN_COOLDOWN" default:"15m"`

	PendingPolicy     string        `envconfig:"PENDING_POLICY" default:"reject"`
	ChallengeTTL      time.Duration `envconfig:"CHALLENGE_TTL" default:"5m"`
	VerifyTimeout     time.Duration `envconfig:"VERIFY_TIMEOUT" default:"5s"`
	MaxFailedAttempts int           `envconfig:"MAX_FAILED_ATTEMPTS" default:"5"`
	FailureCooldown   time.Duration `envconfig:"FAILURE_COOLDOWN" default:"15m"`
	LoadTimeout       time.Duration `envconfig:"LOAD_TIMEOUT" default:"10s"`
	StoreTimeout      time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	AuditEnabled   bool `envconfig:"AUDIT_ENABLED" default:"true"`
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("GOADMIN", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.ProfileBackend {
	case "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("GOADMIN_DATABASE_URL is required for the postgres profile backend")
		}
	default:
		return fmt.Errorf("unknown profile backend %q", c.ProfileBackend)
	}

	switch c.IdentityBackend {
	case "redis":
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("GOADMIN_SESSION_SECRET must be at least 32 bytes for the redis identity backend")
		}
	case "kratos":
		if c.KratosPublicURL == "" || c.KratosAdminURL == "" {
			return fmt.Errorf("GOADMIN_KRATOS_PUBLIC_URL and GOADMIN_KRATOS_ADMIN_URL are required for the kratos identity backend")
		}
	default:
		return fmt.Errorf("unknown identity backend %q", c.IdentityBackend)
	}

	if c.PendingPolicy != "reject" && c.PendingPolicy != "replace" {
		return fmt.Errorf("unknown pending policy %q", c.PendingPolicy)
	}
	return nil
}

// panelConfig maps the environment onto goAdmin.Config. Builder.Build
// validates the result.
func (c *Config) panelConfig() goAdmin.Config {
	cfg := goAdmin.DefaultConfig()
	cfg.Directory.LoadTimeout = c.LoadTimeout
	if c.PendingPolicy == "replace" {
		cfg.Gate.PendingPolicy = goAdmin.PendingReplace
	}
	cfg.Gate.ChallengeTTL = c.ChallengeTTL
	cfg.Gate.VerifyTimeout = c.VerifyTimeout
	cfg.Gate.MaxFailedAttempts = c.MaxFailedAttempts
	cfg.Gate.FailureCooldown = c.FailureCooldown
	cfg.Gate.RedisPrefix = c.RedisPrefix + ":rl"
	cfg.Deletion.StoreTimeout = c.StoreTimeout
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return cfg
}
