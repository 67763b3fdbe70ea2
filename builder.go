package goAdmin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goAdmin/internal/limiters"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Panel. A Builder can be used for one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	profiles  ProfileStore
	identity  IdentityProvider
	navigator Navigator
	orphans   OrphanRecorder
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the reauthentication attempt
// limiter. It is required only when Gate.MaxFailedAttempts > 0.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.identity = provider
	return b
}

func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithOrphanRecorder persists orphaned deletions, typically a reconcile.Ledger.
func (b *Builder) WithOrphanRecorder(recorder OrphanRecorder) *Builder {
	b.orphans = recorder
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Panel. No store or
// provider is contacted until Start.
func (b *Builder) Build() (*Panel, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if cfg.Gate.MaxFailedAttempts > 0 && b.redis == nil {
		return nil, errors.New("Gate MaxFailedAttempts requires redis client")
	}

	nav := b.navigator
	if nav == nil {
		nav = NavigatorFunc(func(context.Context, Destination) {})
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	panel := &Panel{
		config:     cfg,
		profiles:   b.profiles,
		identity:   b.identity,
		navigator:  nav,
		orphans:    b.orphans,
		logger:     logger,
		now:        time.Now,
		lastLoad:   DisplayLoading,
		tombstones: make(map[string]uint64),
	}

	if cfg.Gate.MaxFailedAttempts > 0 {
		panel.limiter = limiters.NewReauthLimiter(b.redis, limiters.ReauthLimiterConfig{
			Prefix:      cfg.Gate.RedisPrefix,
			MaxAttempts: cfg.Gate.MaxFailedAttempts,
			Cooldown:    cfg.Gate.FailureCooldown,
		})
	}
	panel.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	panel.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return panel, nil
}
