package goAdmin

import (
	"errors"
	"strings"
	"time"
)

// Config holds panel tuning. Builder copies it on WithConfig and Build, so a
// Config value can be reused after handing it over.
type Config struct {
	Directory DirectoryConfig
	Gate      GateConfig
	Deletion  DeletionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
DIRECTORY CONFIG
====================================
*/

// DirectoryConfig bounds the profile-store listing call.
type DirectoryConfig struct {
	LoadTimeout time.Duration // 0 disables the bound
}

/*
====================================
GATE CONFIG
====================================
*/

// PendingPolicy decides what a delete request does while another one is
// waiting for reauthentication.
type PendingPolicy int

const (
	// PendingReject refuses the new request with ErrDeletionPending.
	PendingReject PendingPolicy = iota
	// PendingReplace discards the prior intent and issues a new challenge.
	PendingReplace
)

// GateConfig controls the reauthentication gate.
type GateConfig struct {
	PendingPolicy PendingPolicy
	VerifyTimeout time.Duration
	ChallengeTTL  time.Duration // 0 means challenges never expire

	// MaxFailedAttempts > 0 enables the Redis-backed attempt limiter and
	// requires Builder.WithRedis.
	MaxFailedAttempts int
	FailureCooldown   time.Duration
	RedisPrefix       string
}

/*
====================================
DELETION CONFIG
====================================
*/

// DeletionConfig bounds each store call issued by the orchestrator. Once
// issued, a call is never cancelled by the caller's context.
type DeletionConfig struct {
	StoreTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Directory: DirectoryConfig{
			LoadTimeout: 10 * time.Second,
		},
		Gate: GateConfig{
			PendingPolicy:     PendingReject,
			VerifyTimeout:     5 * time.Second,
			ChallengeTTL:      5 * time.Minute,
			MaxFailedAttempts: 0,
			FailureCooldown:   15 * time.Minute,
			RedisPrefix:       "ga",
		},
		Deletion: DeletionConfig{
			StoreTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Directory
	if c.Directory.LoadTimeout < 0 {
		return errors.New("Directory LoadTimeout must be >= 0")
	}

	// Gate
	switch c.Gate.PendingPolicy {
	case PendingReject, PendingReplace:
		// valid
	default:
		return errors.New("Gate PendingPolicy is invalid")
	}
	if c.Gate.VerifyTimeout <= 0 {
		return errors.New("Gate VerifyTimeout must be > 0")
	}
	if c.Gate.ChallengeTTL < 0 {
		return errors.New("Gate ChallengeTTL must be >= 0")
	}
	if c.Gate.MaxFailedAttempts < 0 {
		return errors.New("Gate MaxFailedAttempts must be >= 0")
	}
	if c.Gate.MaxFailedAttempts > 0 {
		if c.Gate.FailureCooldown <= 0 {
			return errors.New("Gate FailureCooldown must be > 0 when MaxFailedAttempts is set")
		}
		if strings.TrimSpace(c.Gate.RedisPrefix) == "" {
			return errors.New("Gate RedisPrefix must be set when MaxFailedAttempts is set")
		}
	}

	// Deletion
	if c.Deletion.StoreTimeout <= 0 {
		return errors.New("Deletion StoreTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
