// Command goadmin-panel serves the account directory panel over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/identity/kratosidp"
	"github.com/MrEthical07/goAdmin/identity/redisidp"
	"github.com/MrEthical07/goAdmin/internal/httpapi"
	"github.com/MrEthical07/goAdmin/jwt"
	"github.com/MrEthical07/goAdmin/metrics/export/prometheus"
	"github.com/MrEthical07/goAdmin/profile/pgstore"
	"github.com/MrEthical07/goAdmin/profile/redisstore"
	"github.com/MrEthical07/goAdmin/reconcile"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

// identityBackend is what both identity adapters offer the shell.
type identityBackend interface {
	goAdmin.IdentityProvider
	httpapi.Authenticator
	Close()
}

// profileBackend is a ProfileStore that can also be seeded.
type profileBackend interface {
	goAdmin.ProfileStore
	Put(ctx context.Context, rec goAdmin.AccountRecord) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("goadmin-panel failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("goadmin-panel", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "optional dotenv file loaded before reading GOADMIN_* variables")
	seedOperator := flagSet.String("seed-operator", "", "register email:secret:display-name with the redis identity backend and seed its profile")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: goadmin-panel [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	checks := map[string]httpapi.Pinger{
		"redis": httpapi.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}

	profiles, closeProfiles, err := openProfiles(ctx, cfg, rdb, checks)
	if err != nil {
		return err
	}
	defer closeProfiles()

	identity, err := openIdentity(cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer identity.Close()

	if *seedOperator != "" {
		if err := seed(ctx, *seedOperator, identity, profiles, logger); err != nil {
			return err
		}
	}

	nav := httpapi.NewNavigator()
	panel, err := goAdmin.New().
		WithConfig(cfg.panelConfig()).
		WithRedis(rdb).
		WithProfileStore(profiles).
		WithIdentityProvider(identity).
		WithNavigator(nav).
		WithOrphanRecorder(reconcile.NewLedger(rdb, cfg.RedisPrefix+":rec")).
		WithAuditSink(goAdmin.NewJSONWriterSink(os.Stderr)).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build panel: %w", err)
	}
	defer panel.Close()

	if err := panel.Start(ctx); err != nil {
		if !errors.Is(err, goAdmin.ErrFetchFailed) {
			return fmt.Errorf("start panel: %w", err)
		}
		logger.Warn("initial directory load failed; retry with POST /accounts/reload", "error", err)
	}

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Panel:     panel,
		Auth:      identity,
		Navigator: nav,
		Metrics:   prometheus.New(panel).Handler(),
		Checks:    checks,
		Version:   cfg.Version,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting goadmin panel", "port", cfg.Port, "version", cfg.Version,
			"profiles", cfg.ProfileBackend, "identity", cfg.IdentityBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func openProfiles(ctx context.Context, cfg *Config, rdb *redis.Client, checks map[string]httpapi.Pinger) (profileBackend, func(), error) {
	if cfg.ProfileBackend != "postgres" {
		return redisstore.New(rdb, cfg.RedisPrefix+":prof"), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := pgstore.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	checks["postgres"] = pool
	return store, pool.Close, nil
}

func openIdentity(cfg *Config, rdb *redis.Client, logger *slog.Logger) (identityBackend, error) {
	if cfg.IdentityBackend == "kratos" {
		p, err := kratosidp.New(kratosidp.Config{
			PublicURL: cfg.KratosPublicURL,
			AdminURL:  cfg.KratosAdminURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("kratos identity: %w", err)
		}
		return p, nil
	}

	p, err := redisidp.New(rdb, redisidp.Config{
		Prefix:     cfg.RedisPrefix + ":id",
		SessionTTL: cfg.SessionTTL,
		Tokens: jwt.Config{
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.SessionSecret),
			Issuer:        "goadmin-panel",
		},
		SignInMaxAttempts: cfg.SignInMaxAttempts,
		SignInCooldown:    cfg.SignInCooldown,
		ThrottleIP:        true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("redis identity: %w", err)
	}
	return p, nil
}

// seed registers an operator and its profile. It is a no-op for an email
// that already exists.
func seed(ctx context.Context, spec string, identity identityBackend, profiles profileBackend, logger *slog.Logger) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return errors.New("--seed-operator expects email:secret[:display-name]")
	}
	registrar, ok := identity.(*redisidp.Provider)
	if !ok {
		return errors.New("--seed-operator requires the redis identity backend")
	}

	principal, err := registrar.Register(ctx, parts[0], parts[1])
	if errors.Is(err, redisidp.ErrEmailTaken) {
		logger.Info("operator already registered", "email", parts[0])
		return nil
	}
	if err != nil {
		return fmt.Errorf("register operator: %w", err)
	}

	displayName := parts[0]
	if len(parts) == 3 && parts[2] != "" {
		displayName = parts[2]
	}
	if err := profiles.Put(ctx, goAdmin.AccountRecord{
		ID:          principal.ID,
		DisplayName: displayName,
		Email:       principal.Email,
		Role:        "admin",
	}); err != nil {
		return fmt.Errorf("seed operator profile: %w", err)
	}
	logger.Info("operator seeded", "id", principal.ID, "email", principal.Email)
	return nil
}
