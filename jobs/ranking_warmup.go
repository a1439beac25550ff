package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
	jobmetrics "github.com/salesdash/salesdash/internal/jobs"
)

const (
	defaultTopBranches = 5
	presetTimeout      = 20 * time.Second
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Invalidator drops every cached analytics entry.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// RankingWarmupJob loads the datasets a fresh dashboard view asks for, so
// the first visitor after an invalidation does not wait on the backend.
type RankingWarmupJob struct {
	Provider analytics.Backend
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics

	// Overview settings must match the dashboard's so the warmed keys are
	// the ones views read. Zero values fall back to the dashboard defaults.
	TrendGranularity analytics.Granularity
	TrendDays        int
	TopProducts      int

	clock func() time.Time
}

// NewRankingWarmupJob wires dependencies for the warmup handler.
func NewRankingWarmupJob(provider analytics.Backend, logger *slog.Logger, metrics *jobmetrics.Metrics) *RankingWarmupJob {
	return &RankingWarmupJob{
		Provider: provider,
		Logger:   logger,
		Metrics:  metrics,
		clock:    time.Now,
	}
}

// Handle processes TaskRankingWarmup tasks.
func (j *RankingWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Provider == nil {
		return errors.New("ranking warmup: handler not configured")
	}
	payload := RankingWarmupPayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ranking warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	presets, err := warmupPresets(payload.Presets)
	if err != nil {
		return fmt.Errorf("ranking warmup: %v: %w", err, asynq.SkipRetry)
	}
	top := payload.TopBranches
	if top <= 0 {
		top = defaultTopBranches
	}

	tracker := j.metrics().Track(TaskRankingWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	started := time.Now()
	logger.Info("starting ranking warmup", slog.Int("presets", len(presets)), slog.Int("top_branches", top))

	now := j.now()
	for _, preset := range presets {
		if err := j.warmPreset(ctx, preset, now, top); err != nil {
			logger.Error("warm preset", slog.String("preset", string(preset)), slog.Any("error", err))
			return err
		}
	}
	if _, err := j.Provider.FetchGeneralKPIs(ctx); err != nil {
		logger.Error("warm kpis", slog.Any("error", err))
		return err
	}
	j.metrics().AddWarmed("kpis", 1)

	if err := j.warmOverview(ctx); err != nil {
		logger.Error("warm overview", slog.Any("error", err))
		return err
	}

	logger.Info("completed ranking warmup", slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *RankingWarmupJob) warmPreset(ctx context.Context, preset drilldown.Preset, now time.Time, top int) error {
	rng, err := preset.Resolve(now)
	if err != nil {
		return err
	}
	presetCtx, cancel := context.WithTimeout(ctx, presetTimeout)
	defer cancel()

	rows, err := j.Provider.FetchBranchRanking(presetCtx, rng)
	if err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	j.metrics().AddWarmed("ranking", 1)

	ranking := drilldown.DeriveRanking(rows)
	if len(ranking) > top {
		ranking = ranking[:top]
	}
	for _, branch := range ranking {
		if _, err := j.Provider.FetchVendorsForBranch(presetCtx, branch.ID, rng); err != nil {
			return fmt.Errorf("vendors of branch %d: %w", branch.ID, err)
		}
		if _, err := j.Provider.FetchBranchCategories(presetCtx, branch.ID, rng); err != nil {
			return fmt.Errorf("categories of branch %d: %w", branch.ID, err)
		}
	}
	j.metrics().AddWarmed("vendors", len(ranking))
	j.metrics().AddWarmed("categories", len(ranking))
	return nil
}

func (j *RankingWarmupJob) warmOverview(ctx context.Context) error {
	granularity := j.TrendGranularity
	if granularity == "" {
		granularity = analytics.GranularityDay
	}
	days := j.TrendDays
	if days <= 0 {
		days = analytics.DefaultTrendDays
	}
	limit := j.TopProducts
	if limit <= 0 {
		limit = analytics.DefaultTopProducts
	}
	if _, err := j.Provider.FetchSalesTrend(ctx, granularity, days); err != nil {
		return fmt.Errorf("sales trend: %w", err)
	}
	j.metrics().AddWarmed("trend", 1)
	if _, err := j.Provider.FetchTopProducts(ctx, limit); err != nil {
		return fmt.Errorf("top products: %w", err)
	}
	j.metrics().AddWarmed("top_products", 1)
	return nil
}

func warmupPresets(raw []string) ([]drilldown.Preset, error) {
	if len(raw) == 0 {
		return drilldown.Presets(), nil
	}
	out := make([]drilldown.Preset, 0, len(raw))
	for _, value := range raw {
		preset, err := drilldown.ParsePreset(value)
		if err != nil {
			return nil, err
		}
		if preset == drilldown.PresetCustomRange {
			return nil, fmt.Errorf("preset %q has no fixed range", value)
		}
		out = append(out, preset)
	}
	return out, nil
}

func (j *RankingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRankingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRankingWarmup))
}

func (j *RankingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RankingWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// CacheInvalidateJob bumps the cache version so running dashboards and the
// next warmup read fresh data.
type CacheInvalidateJob struct {
	Cache   Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheInvalidateJob wires dependencies for the invalidation handler.
func NewCacheInvalidateJob(cache Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheInvalidateJob {
	return &CacheInvalidateJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCacheInvalidate tasks.
func (j *CacheInvalidateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Cache == nil {
		return errors.New("cache invalidate: handler not configured")
	}
	var payload CacheInvalidatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache invalidate: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCacheInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version, err := j.Cache.Invalidate(ctx)
	if err != nil {
		logger.Error("bump cache version", slog.String("job", TaskCacheInvalidate), slog.Any("error", err))
		return err
	}
	logger.Info("analytics cache invalidated",
		slog.String("job", TaskCacheInvalidate),
		slog.String("reason", payload.Reason),
		slog.Int64("version", version))
	return nil
}
