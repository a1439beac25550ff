package analytics

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/salesdash/salesdash/internal/drilldown"
)

// Backend is the full query surface of the sales backend.
type Backend interface {
	drilldown.DataProvider
	CompanySource
}

// CachedProvider fronts a Backend with the versioned Redis cache. Concurrent
// identical loads collapse into one backend call.
type CachedProvider struct {
	backend     Backend
	cache       *Cache
	group       singleflight.Group
	logger      *slog.Logger
	loadTimeout time.Duration
}

// ProviderOption customises a CachedProvider.
type ProviderOption func(*CachedProvider)

// WithProviderLogger sets the logger used for cache degradation warnings.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *CachedProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoadTimeout bounds a shared backend load.
func WithLoadTimeout(d time.Duration) ProviderOption {
	return func(p *CachedProvider) {
		if d > 0 {
			p.loadTimeout = d
		}
	}
}

// NewCachedProvider wires a Backend with a Cache helper. A nil cache turns
// the provider into a singleflight-only passthrough.
func NewCachedProvider(backend Backend, cache *Cache, opts ...ProviderOption) *CachedProvider {
	p := &CachedProvider{
		backend:     backend,
		cache:       cache,
		logger:      slog.Default(),
		loadTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Backend = (*CachedProvider)(nil)

// FetchBranchRanking returns the cached raw ranking for rng.
func (p *CachedProvider) FetchBranchRanking(ctx context.Context, rng drilldown.DateRange) ([]drilldown.BranchAggregate, error) {
	return cachedLoad(ctx, p, keyRanking(rng), func(ctx context.Context) ([]drilldown.BranchAggregate, error) {
		return p.backend.FetchBranchRanking(ctx, rng)
	})
}

// FetchVendorsForBranch returns the cached vendor list of a branch.
func (p *CachedProvider) FetchVendorsForBranch(ctx context.Context, branchID int64, rng drilldown.DateRange) ([]drilldown.VendorAggregate, error) {
	return cachedLoad(ctx, p, keyVendors(branchID, rng), func(ctx context.Context) ([]drilldown.VendorAggregate, error) {
		return p.backend.FetchVendorsForBranch(ctx, branchID, rng)
	})
}

// FetchVendorDetail returns the cached vendor detail.
func (p *CachedProvider) FetchVendorDetail(ctx context.Context, vendorID int64, rng drilldown.DateRange) (drilldown.VendorDetail, error) {
	return cachedLoad(ctx, p, keyVendorDetail(vendorID, rng), func(ctx context.Context) (drilldown.VendorDetail, error) {
		return p.backend.FetchVendorDetail(ctx, vendorID, rng)
	})
}

// FetchBranchCategories returns the cached category breakdown of a branch.
func (p *CachedProvider) FetchBranchCategories(ctx context.Context, branchID int64, rng drilldown.DateRange) ([]drilldown.CategorySales, error) {
	return cachedLoad(ctx, p, keyCategories(branchID, rng), func(ctx context.Context) ([]drilldown.CategorySales, error) {
		return p.backend.FetchBranchCategories(ctx, branchID, rng)
	})
}

// FetchSalesTrend returns the cached company sales trend.
func (p *CachedProvider) FetchSalesTrend(ctx context.Context, granularity Granularity, days int) ([]TrendPoint, error) {
	return cachedLoad(ctx, p, keyTrend(granularity, days), func(ctx context.Context) ([]TrendPoint, error) {
		return p.backend.FetchSalesTrend(ctx, granularity, days)
	})
}

// FetchTopProducts returns the cached company best sellers.
func (p *CachedProvider) FetchTopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	return cachedLoad(ctx, p, keyTopProducts(limit), func(ctx context.Context) ([]TopProduct, error) {
		return p.backend.FetchTopProducts(ctx, limit)
	})
}

// FetchGeneralKPIs returns the cached general KPI block.
func (p *CachedProvider) FetchGeneralKPIs(ctx context.Context) (GeneralKPIs, error) {
	return cachedLoad(ctx, p, keyKPIs(), func(ctx context.Context) (GeneralKPIs, error) {
		return p.backend.FetchGeneralKPIs(ctx)
	})
}

// Invalidate drops every cached aggregate.
func (p *CachedProvider) Invalidate(ctx context.Context) (int64, error) {
	return p.cache.Bump(ctx)
}

func cachedLoad[T any](ctx context.Context, p *CachedProvider, keyBase string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := p.cache.BuildKey(ctx, keyBase)
	if err != nil {
		p.logger.Warn("cache unavailable, loading from backend", slog.String("key", keyBase), slog.Any("error", err))
		return load(ctx)
	}

	// The shared load outlives any single caller; a superseded caller only
	// stops waiting.
	shared := context.WithoutCancel(ctx)
	resultChan := p.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(shared, p.loadTimeout)
		defer cancel()
		var out T
		err := p.cache.FetchJSON(loadCtx, key, &out, func(ctx context.Context) (interface{}, error) {
			return load(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
