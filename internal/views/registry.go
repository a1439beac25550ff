// Package views exposes drill-down dashboard views over HTTP. Each view owns
// one drilldown.Controller and is addressed by a random UUID.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

var (
	// ErrViewNotFound is returned for unknown or evicted view ids.
	ErrViewNotFound = errors.New("views: view not found")
	// ErrTooManyViews is returned when the registry is full.
	ErrTooManyViews = errors.New("views: too many open views")
)

// View is one dashboard view: a controller plus the company-wide KPI and
// overview blocks.
type View struct {
	ID        uuid.UUID
	CreatedAt time.Time

	ctrl *drilldown.Controller

	mu          sync.Mutex
	kpis        *analytics.GeneralKPIs
	kpiErr      error
	overview    *analytics.Overview
	overviewErr error
	lastSeen    time.Time
}

// Controller returns the drill-down controller of the view.
func (v *View) Controller() *drilldown.Controller {
	return v.ctrl
}

// KPIs returns the last loaded KPI block and the error of the last attempt.
func (v *View) KPIs() (*analytics.GeneralKPIs, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.kpis == nil {
		return nil, v.kpiErr
	}
	out := *v.kpis
	return &out, v.kpiErr
}

// Overview returns the last loaded trend and best sellers and the error of the
// last attempt. A failed reload keeps the previous block.
func (v *View) Overview() (*analytics.Overview, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.overview == nil {
		return nil, v.overviewErr
	}
	out := *v.overview
	out.Trend = append([]analytics.TrendPoint(nil), v.overview.Trend...)
	out.TopProducts = append([]analytics.TopProduct(nil), v.overview.TopProducts...)
	return &out, v.overviewErr
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// Registry tracks the open views of the process.
type Registry struct {
	provider    drilldown.DataProvider
	company     analytics.CompanySource
	logger      *slog.Logger
	now         func() time.Time
	idleTTL     time.Duration
	maxViews    int
	ctrlOpts    []drilldown.Option
	granularity analytics.Granularity
	trendDays   int
	topProducts int

	mu    sync.Mutex
	views map[uuid.UUID]*View
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger; controllers inherit it.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIdleTTL sets how long an untouched view survives a sweep.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithMaxViews caps the number of open views; zero means unlimited.
func WithMaxViews(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 0 {
			r.maxViews = n
		}
	}
}

// WithRegistryClock overrides the clock used for presets and idle tracking.
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithControllerOptions appends options applied to every new controller.
func WithControllerOptions(opts ...drilldown.Option) RegistryOption {
	return func(r *Registry) {
		r.ctrlOpts = append(r.ctrlOpts, opts...)
	}
}

// WithTrend sets the bucket size and trailing window of the sales trend.
func WithTrend(granularity analytics.Granularity, days int) RegistryOption {
	return func(r *Registry) {
		if granularity != "" {
			r.granularity = granularity
		}
		if days > 0 && days <= analytics.MaxTrendDays {
			r.trendDays = days
		}
	}
}

// WithTopProducts sets how many best sellers each view lists.
func WithTopProducts(limit int) RegistryOption {
	return func(r *Registry) {
		if limit > 0 {
			r.topProducts = limit
		}
	}
}

// NewRegistry builds a registry over provider. company may be nil, in which
// case views carry no KPI or overview block.
func NewRegistry(provider drilldown.DataProvider, company analytics.CompanySource, opts ...RegistryOption) *Registry {
	r := &Registry{
		provider:    provider,
		company:     company,
		logger:      slog.Default(),
		now:         time.Now,
		idleTTL:     30 * time.Minute,
		maxViews:    1000,
		granularity: analytics.GranularityDay,
		trendDays:   analytics.DefaultTrendDays,
		topProducts: analytics.DefaultTopProducts,
		views:       make(map[uuid.UUID]*View),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now exposes the registry clock.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create registers a new view starting at initial and loads it.
func (r *Registry) Create(ctx context.Context, initial drilldown.Selection) (*View, error) {
	opts := append([]drilldown.Option{
		drilldown.WithLogger(r.logger),
		drilldown.WithClock(r.now),
	}, r.ctrlOpts...)
	ctrl, err := drilldown.New(r.provider, initial, opts...)
	if err != nil {
		return nil, err
	}
	now := r.now()
	view := &View{ID: uuid.New(), CreatedAt: now, ctrl: ctrl, lastSeen: now}

	r.mu.Lock()
	if r.maxViews > 0 && len(r.views) >= r.maxViews {
		r.mu.Unlock()
		return nil, ErrTooManyViews
	}
	r.views[view.ID] = view
	r.mu.Unlock()

	r.logger.Info("view opened", slog.String("view_id", view.ID.String()), slog.String("depth", initial.Depth().String()))
	r.Reload(ctx, view)
	return view, nil
}

// Get looks up a view and marks it as recently used.
func (r *Registry) Get(id uuid.UUID) (*View, error) {
	r.mu.Lock()
	view, ok := r.views[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	view.touch(r.now())
	return view, nil
}

// Delete closes and forgets a view.
func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	view, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	view.ctrl.Close()
	return nil
}

// Len reports the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Reload refreshes every populated level of the view, its KPI block and its
// overview in parallel. Failures are recorded on the view, never returned.
func (r *Registry) Reload(ctx context.Context, view *View) {
	var g errgroup.Group
	g.Go(func() error {
		return view.ctrl.Refresh(ctx)
	})
	if r.company != nil {
		g.Go(func() error {
			r.reloadOverview(ctx, view)
			return nil
		})
		g.Go(func() error {
			kpis, err := r.company.FetchGeneralKPIs(ctx)
			view.mu.Lock()
			defer view.mu.Unlock()
			if err != nil {
				view.kpiErr = err
				r.logger.Warn("general kpis fetch failed", slog.String("view_id", view.ID.String()), slog.Any("error", err))
				return nil
			}
			view.kpis = &kpis
			view.kpiErr = nil
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Registry) reloadOverview(ctx context.Context, view *View) {
	overview := analytics.Overview{Granularity: r.granularity, Days: r.trendDays}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trend, err := r.company.FetchSalesTrend(gctx, r.granularity, r.trendDays)
		if err != nil {
			return fmt.Errorf("sales trend: %w", err)
		}
		overview.Trend = trend
		return nil
	})
	g.Go(func() error {
		top, err := r.company.FetchTopProducts(gctx, r.topProducts)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		overview.TopProducts = top
		return nil
	})
	err := g.Wait()

	view.mu.Lock()
	defer view.mu.Unlock()
	if err != nil {
		view.overviewErr = err
		r.logger.Warn("overview fetch failed", slog.String("view_id", view.ID.String()), slog.Any("error", err))
		return
	}
	if overview.Trend == nil {
		overview.Trend = []analytics.TrendPoint{}
	}
	if overview.TopProducts == nil {
		overview.TopProducts = []analytics.TopProduct{}
	}
	view.overview = &overview
	view.overviewErr = nil
}

// Sweep evicts views idle for longer than the idle TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)
	var evicted []*View
	r.mu.Lock()
	for id, view := range r.views {
		if view.idleSince().Before(cutoff) {
			evicted = append(evicted, view)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()
	for _, view := range evicted {
		view.ctrl.Close()
	}
	if len(evicted) > 0 {
		r.logger.Info("idle views evicted", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

// CloseAll closes every view, abandoning in-flight fetches, and returns how
// many there were.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := make([]*View, 0, len(r.views))
	for id, view := range r.views {
		all = append(all, view)
		delete(r.views, id)
	}
	r.mu.Unlock()
	for _, view := range all {
		view.ctrl.Close()
	}
	return len(all)
}

// RunSweeper sweeps on every tick until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
