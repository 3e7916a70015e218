// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/admin"
	"github.com/carterperez-dev/templates/imagegate/internal/artifact"
	"github.com/carterperez-dev/templates/imagegate/internal/checkout"
	"github.com/carterperez-dev/templates/imagegate/internal/config"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/entitlement"
	"github.com/carterperez-dev/templates/imagegate/internal/gateway"
	"github.com/carterperez-dev/templates/imagegate/internal/health"
	"github.com/carterperez-dev/templates/imagegate/internal/imagesearch"
	"github.com/carterperez-dev/templates/imagegate/internal/middleware"
	"github.com/carterperez-dev/templates/imagegate/internal/migrations"
	"github.com/carterperez-dev/templates/imagegate/internal/server"
	"github.com/carterperez-dev/templates/imagegate/internal/session"
	"github.com/carterperez-dev/templates/imagegate/internal/usage"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envPath, "error", err)
	}

	if _, err := os.Stat(*configPath); errors.Is(err, fs.ErrNotExist) {
		*configPath = ""
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"driver", cfg.Database.Driver,
		"max_open_conns", cfg.Database.MaxOpenConns,
	)

	if err := migrations.Up(db.DB.DB, cfg.Database.Driver); err != nil {
		return err
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)

	jwtManager, err := session.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}

	accountSvc := account.NewService(db.DB, logger)
	if _, err := accountSvc.RepairLegacyPasswords(ctx); err != nil {
		return err
	}

	usageSvc := usage.NewService(db.DB)
	engine := entitlement.NewEngine(accountSvc, usageSvc, cfg.Quota.FreeUses)

	stripeProvider := checkout.NewStripeProvider(cfg.Payment)
	checkoutSvc := checkout.NewService(
		db.DB,
		accountSvc,
		stripeProvider,
		checkout.SettingsFromConfig(cfg.Payment),
		logger,
	)
	sweeper := checkout.NewSweeper(
		checkoutSvc,
		cfg.Payment.SweepInterval,
		cfg.Payment.StaleAfter,
		logger,
	)

	artifacts, err := artifact.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.Info("artifact store ready", "backend", cfg.Storage.Backend)

	sessionStore := session.NewStore(redis.Client, jwtManager.TTL())

	gw := gateway.New(gateway.Deps{
		Accounts:     accountSvc,
		Usage:        usageSvc,
		Entitlements: engine,
		Checkouts:    checkoutSvc,
		Webhooks:     stripeProvider,
		Sessions:     sessionStore,
		Tokens:       jwtManager,
		Search:       imagesearch.NewUnsplash(cfg.ImageSearch, nil),
		Artifacts:    artifacts,
		Logger:       logger,
	}, gateway.Settings{
		SearchTimeout: cfg.ImageSearch.Timeout,
		MaxImageWidth: cfg.Storage.MaxWidth,
	})
	gatewayHandler := gateway.NewHandler(gw)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
		health.Dependency{Name: "storage", Checker: artifacts},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Accounts:   accountSvc,
		Usage:      usageSvc,
		Checkouts:  checkoutSvc,
		Sessions:   sessionStore,
		Sweeper:    sweeper,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics)
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit:    middleware.FromConfig(cfg.RateLimit),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(
		session.NewVerifier(jwtManager, sessionStore),
	)
	adminOnly := middleware.RequireAdminToken(cfg.Admin.Token)

	featureLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.FeaturePerMinute,
			cfg.RateLimit.FeaturePerMinute,
		),
		KeyFunc:  middleware.KeyByAccountAndEndpoint,
		FailOpen: true,
	})

	router.Route("/v1", func(r chi.Router) {
		gatewayHandler.RegisterRoutes(r, authenticator, featureLimiter.Handler)
		adminHandler.RegisterRoutes(r, adminOnly)
	})

	go sweeper.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
