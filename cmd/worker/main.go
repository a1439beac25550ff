package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/app"
	jobmetrics "github.com/salesdash/salesdash/internal/jobs"
	"github.com/salesdash/salesdash/internal/platform/cache"
	"github.com/salesdash/salesdash/internal/provider/rest"
	"github.com/salesdash/salesdash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
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
	provider := analytics.NewCachedProvider(backend, analytics.NewCache(redisClient, cfg.CacheTTL),
		analytics.WithProviderLogger(logger),
		analytics.WithLoadTimeout(cfg.CacheLoadTimeout),
	)

	metrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewRankingWarmupJob(provider, logger, metrics)
	warmupJob.TrendGranularity, warmupJob.TrendDays, err = cfg.Trend()
	if err != nil {
		logger.Error("trend settings", slog.Any("error", err))
		os.Exit(1)
	}
	warmupJob.TopProducts = cfg.TopProducts
	invalidateJob := jobs.NewCacheInvalidateJob(provider, logger, metrics)

	warmupTask, err := jobs.NewRankingWarmupTask(nil, cfg.WarmupTopBranches)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	invalidateTask, err := jobs.NewCacheInvalidateTask("scheduled")
	if err != nil {
		logger.Error("build invalidate task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.WarmupCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if cfg.InvalidateCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.InvalidateCron, Task: invalidateTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRankingWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskCacheInvalidate, Handler: invalidateJob.Handle},
		},
		Cron:        cron,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
