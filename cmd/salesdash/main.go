package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/salesdash/salesdash/cmd/salesdash/cli"
	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/app"
	"github.com/salesdash/salesdash/internal/drilldown"
	"github.com/salesdash/salesdash/internal/observability"
	"github.com/salesdash/salesdash/internal/platform/cache"
	"github.com/salesdash/salesdash/internal/provider/rest"
	"github.com/salesdash/salesdash/internal/views"
	"github.com/salesdash/salesdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(cli.RunJobs(ctx, os.Args[2:], redisOpts, os.Stdout, os.Stderr))
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}
	clock := func() time.Time { return time.Now().In(loc) }

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// The dashboard still serves from the backend while Redis is down.
		logger.Warn("redis unavailable, caching degraded", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	backend, err := rest.NewClient(cfg.BackendURL, cfg.BackendTimeout, rest.WithLogger(logger))
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}
	analyticsCache := analytics.NewCache(redisClient, cfg.CacheTTL)
	provider := analytics.NewCachedProvider(backend, analyticsCache,
		analytics.WithProviderLogger(logger),
		analytics.WithLoadTimeout(cfg.CacheLoadTimeout),
	)

	granularity, trendDays, err := cfg.Trend()
	if err != nil {
		logger.Error("trend settings", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	registry := views.NewRegistry(provider, provider,
		views.WithRegistryLogger(logger),
		views.WithIdleTTL(cfg.ViewIdleTTL),
		views.WithMaxViews(cfg.ViewMax),
		views.WithRegistryClock(clock),
		views.WithControllerOptions(drilldown.WithObserver(metrics)),
		views.WithTrend(granularity, trendDays),
		views.WithTopProducts(cfg.TopProducts),
	)
	metrics.ViewGauge(registry.Len)

	formatter, err := views.NewFormatter(cfg.Locale)
	if err != nil {
		logger.Error("init formatter", slog.Any("error", err))
		os.Exit(1)
	}
	viewsHandler := views.NewHandler(logger, registry, formatter)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	go registry.RunSweeper(ctx, cfg.ViewSweepInterval)
	go func() {
		err := analyticsCache.ListenForInvalidation(ctx, cfg.CacheChannel, func(version int64) {
			logger.Info("analytics cache version bumped", slog.Int64("version", version), slog.Int("open_views", registry.Len()))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("cache invalidation listener stopped", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		ViewsHandler: viewsHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
		Readiness: map[string]app.ReadinessCheck{
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	closed := registry.CloseAll()
	logger.Info("closed dashboard views", slog.Int("views", closed))
}
