// Package drilldown keeps the branch → vendor → product selection of a sales
// dashboard view, fetches each level from a DataProvider and derives the
// secondary KPIs the view renders.
//
// Every level carries an epoch that is bumped whenever its fetch is
// (re)triggered or its data invalidated. A fetch result is applied only when
// its captured epoch is still current, so a slow response for a superseded
// selection can never overwrite newer data.
package drilldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const levelCount = 4

// Outcome classifies how a fetch settled.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeSuperseded Outcome = "superseded"
)

// Observer receives fetch lifecycle notifications, e.g. for metrics.
type Observer interface {
	FetchStarted(level Level)
	FetchSettled(level Level, outcome Outcome, elapsed time.Duration)
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches a fetch observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithClock overrides the clock used to resolve presets.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		if fn != nil {
			c.now = fn
		}
	}
}

type levelState struct {
	epoch   uint64
	cancel  context.CancelFunc
	loading bool
	loaded  bool
	err     *FetchError
	rng     DateRange
}

// Controller owns the selection and snapshot of one dashboard view. It is
// safe for concurrent use; provider calls never run under the lock.
type Controller struct {
	provider DataProvider
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu         sync.Mutex
	sel        Selection
	branches   []BranchAggregate
	vendors    []VendorAggregate
	categories []CategorySales
	detail     *VendorDetail
	levels     [levelCount]levelState
}

// New builds a controller over provider starting from initial. No fetch is
// issued until the first operation; call Refresh to load the initial data.
func New(provider DataProvider, initial Selection, opts ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("drilldown: provider required")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial selection: %w", err)
	}
	if initial.Preset == "" {
		initial.Preset = PresetCustomRange
	}
	c := &Controller{
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
		sel:      initial.clone(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetDateRange moves the view to an explicit range and refetches every
// populated level under it. The drill-down path is kept.
func (c *Controller) SetDateRange(ctx context.Context, rng DateRange) error {
	return c.setRange(ctx, rng, PresetCustomRange)
}

// ApplyPreset resolves preset against the controller clock and behaves like
// SetDateRange.
func (c *Controller) ApplyPreset(ctx context.Context, preset Preset) error {
	rng, err := preset.Resolve(c.now())
	if err != nil {
		return err
	}
	return c.setRange(ctx, rng, preset)
}

func (c *Controller) setRange(ctx context.Context, rng DateRange, preset Preset) error {
	if err := rng.Validate(); err != nil {
		return fmt.Errorf("set date range %s..%s: %w", rng.Start.Format(time.DateOnly), rng.End.Format(time.DateOnly), err)
	}
	c.mu.Lock()
	c.sel.Range = rng
	c.sel.Preset = preset
	tasks := c.scheduleAllLocked(ctx)
	c.mu.Unlock()

	c.run(tasks)
	return nil
}

// SelectBranch focuses a branch, or clears the whole drill-down when id is nil.
// The vendor list and the category breakdown of the branch load in parallel.
func (c *Controller) SelectBranch(ctx context.Context, id *int64) error {
	c.mu.Lock()
	c.sel.VendorID = nil
	c.sel.ProductID = nil
	c.vendors = nil
	c.categories = nil
	c.detail = nil
	c.resetLocked(LevelVendors)
	c.resetLocked(LevelCategories)
	c.resetLocked(LevelVendorDetail)
	if id == nil {
		c.sel.BranchID = nil
		c.mu.Unlock()
		return nil
	}
	c.sel.BranchID = cloneID(id)
	tasks := c.branchTasksLocked(ctx)
	c.mu.Unlock()

	c.run(tasks)
	return nil
}

// SelectVendor focuses a vendor of the selected branch, or returns to the
// branch level when id is nil.
func (c *Controller) SelectVendor(ctx context.Context, id *int64) error {
	c.mu.Lock()
	if c.sel.BranchID == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: vendor requires a selected branch", ErrInvalidSelection)
	}
	if id != nil && c.levels[LevelVendors].loaded && !containsVendor(c.vendors, *id) {
		branchID := *c.sel.BranchID
		c.mu.Unlock()
		return fmt.Errorf("%w: vendor %d not listed for branch %d", ErrInvalidSelection, *id, branchID)
	}
	c.sel.ProductID = nil
	c.detail = nil
	c.resetLocked(LevelVendorDetail)
	if id == nil {
		c.sel.VendorID = nil
		c.mu.Unlock()
		return nil
	}
	c.sel.VendorID = cloneID(id)
	task := c.detailTaskLocked(ctx)
	c.mu.Unlock()

	c.run([]fetchTask{task})
	return nil
}

// SelectProduct focuses a product of the selected vendor. The product view is
// derived from the loaded vendor detail, so no fetch is issued.
func (c *Controller) SelectProduct(id *int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == nil {
		c.sel.ProductID = nil
		return nil
	}
	if c.sel.VendorID == nil {
		return fmt.Errorf("%w: product requires a selected vendor", ErrInvalidSelection)
	}
	if c.detail == nil {
		return fmt.Errorf("%w: vendor %d detail not loaded", ErrInvalidSelection, *c.sel.VendorID)
	}
	if _, ok := c.detail.Product(*id); !ok {
		return fmt.Errorf("%w: product %d not sold by vendor %d", ErrInvalidSelection, *id, *c.sel.VendorID)
	}
	c.sel.ProductID = cloneID(id)
	return nil
}

// Refresh re-issues the fetch of every populated level without touching the
// selection. It is the only retry path after a failure.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	tasks := c.scheduleAllLocked(ctx)
	c.mu.Unlock()

	c.run(tasks)
	return nil
}

// Close abandons every in-flight fetch. Data and selection are kept, so a
// closed controller can still be snapshotted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.levels {
		st := &c.levels[i]
		if st.cancel == nil {
			continue
		}
		st.epoch++
		st.cancel()
		st.cancel = nil
		st.loading = false
	}
}

// Snapshot returns a detached copy of the current state. It never fetches.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Selection:        c.sel.clone(),
		Branches:         cloneBranches(c.branches),
		Vendors:          cloneVendors(c.vendors),
		Categories:       cloneCategories(c.categories),
		BranchesStatus:   c.levels[LevelBranches].status(),
		VendorsStatus:    c.levels[LevelVendors].status(),
		DetailStatus:     c.levels[LevelVendorDetail].status(),
		CategoriesStatus: c.levels[LevelCategories].status(),
	}
	if c.sel.BranchID != nil && c.levels[LevelVendors].loaded {
		team := SummariseTeam(c.vendors)
		snap.Team = &team
	}
	if c.detail != nil {
		detail := cloneDetail(*c.detail)
		snap.VendorDetail = &detail
		if c.sel.ProductID != nil {
			if focus, ok := FocusProduct(detail, *c.sel.ProductID); ok {
				snap.Product = &focus
			}
		}
	}
	return snap
}

type fetchTask struct {
	level Level
	epoch uint64
	ctx   context.Context
	rng   DateRange
	id    int64
}

func (c *Controller) scheduleAllLocked(ctx context.Context) []fetchTask {
	tasks := []fetchTask{c.beginLocked(ctx, LevelBranches, 0)}
	if c.sel.BranchID != nil {
		tasks = append(tasks, c.branchTasksLocked(ctx)...)
	}
	if c.sel.VendorID != nil {
		tasks = append(tasks, c.detailTaskLocked(ctx))
	}
	return tasks
}

func (c *Controller) branchTasksLocked(ctx context.Context) []fetchTask {
	return []fetchTask{
		c.beginLocked(ctx, LevelVendors, *c.sel.BranchID),
		c.beginLocked(ctx, LevelCategories, *c.sel.BranchID),
	}
}

func (c *Controller) detailTaskLocked(ctx context.Context) fetchTask {
	return c.beginLocked(ctx, LevelVendorDetail, *c.sel.VendorID)
}

// beginLocked supersedes any in-flight fetch of level and captures a new epoch.
func (c *Controller) beginLocked(ctx context.Context, level Level, id int64) fetchTask {
	st := &c.levels[level]
	st.epoch++
	if st.cancel != nil {
		st.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	st.loading = true
	return fetchTask{level: level, epoch: st.epoch, ctx: fctx, rng: c.sel.Range, id: id}
}

// resetLocked drops a level's data bookkeeping and orphans its in-flight fetch.
func (c *Controller) resetLocked(level Level) {
	st := &c.levels[level]
	st.epoch++
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.loading = false
	st.loaded = false
	st.err = nil
	st.rng = DateRange{}
}

func (c *Controller) run(tasks []fetchTask) {
	if len(tasks) == 1 {
		c.execute(tasks[0])
		return
	}
	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			c.execute(task)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Controller) execute(task fetchTask) {
	if c.observer != nil {
		c.observer.FetchStarted(task.level)
	}
	start := time.Now()

	var (
		branches   []BranchAggregate
		vendors    []VendorAggregate
		categories []CategorySales
		detail     VendorDetail
		err        error
	)
	switch task.level {
	case LevelBranches:
		branches, err = c.provider.FetchBranchRanking(task.ctx, task.rng)
	case LevelVendors:
		vendors, err = c.provider.FetchVendorsForBranch(task.ctx, task.id, task.rng)
	case LevelVendorDetail:
		detail, err = c.provider.FetchVendorDetail(task.ctx, task.id, task.rng)
	case LevelCategories:
		categories, err = c.provider.FetchBranchCategories(task.ctx, task.id, task.rng)
	}

	outcome := c.apply(task, err, func() {
		switch task.level {
		case LevelBranches:
			c.branches = DeriveRanking(nonNilBranches(branches))
		case LevelVendors:
			c.vendors = SortVendors(nonNilVendors(vendors))
			c.reconcileVendorLocked()
		case LevelVendorDetail:
			d := cloneDetail(detail)
			d.AverageTicket = AverageTicket(d.TotalSales, d.SalesCount)
			c.detail = &d
			c.reconcileProductLocked()
		case LevelCategories:
			c.categories = DeriveCategories(nonNilCategories(categories))
		}
	})

	if outcome == OutcomeFailure {
		c.logger.Warn("drilldown fetch failed",
			slog.String("level", task.level.String()),
			slog.Int64("id", task.id),
			slog.String("from", task.rng.Start.Format(time.DateOnly)),
			slog.String("to", task.rng.End.Format(time.DateOnly)),
			slog.Any("error", err))
	}
	if c.observer != nil {
		c.observer.FetchSettled(task.level, outcome, time.Since(start))
	}
}

// apply installs a settled result when its epoch is still current. Stale
// results are dropped without touching state.
func (c *Controller) apply(task fetchTask, err error, install func()) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &c.levels[task.level]
	if st.epoch != task.epoch {
		return OutcomeSuperseded
	}
	st.loading = false
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	if err != nil {
		st.err = &FetchError{Level: task.level, Err: err}
		return OutcomeFailure
	}
	install()
	st.err = nil
	st.loaded = true
	st.rng = task.rng
	return OutcomeSuccess
}

// reconcileVendorLocked falls back to the branch level when the selected
// vendor no longer appears in the branch listing.
func (c *Controller) reconcileVendorLocked() {
	if c.sel.VendorID == nil || containsVendor(c.vendors, *c.sel.VendorID) {
		return
	}
	c.logger.Debug("selected vendor left the listing",
		slog.Int64("vendor_id", *c.sel.VendorID))
	c.sel.VendorID = nil
	c.sel.ProductID = nil
	c.detail = nil
	c.resetLocked(LevelVendorDetail)
}

// reconcileProductLocked drops a product the vendor no longer sold.
func (c *Controller) reconcileProductLocked() {
	if c.sel.ProductID == nil || c.detail == nil {
		return
	}
	if _, ok := c.detail.Product(*c.sel.ProductID); !ok {
		c.sel.ProductID = nil
	}
}

func (st levelState) status() LevelStatus {
	out := LevelStatus{Loading: st.loading, Range: st.rng}
	if st.err != nil {
		errCopy := *st.err
		out.LastError = &errCopy
	}
	return out
}

func nonNilBranches(rows []BranchAggregate) []BranchAggregate {
	if rows == nil {
		return []BranchAggregate{}
	}
	return rows
}

func nonNilVendors(rows []VendorAggregate) []VendorAggregate {
	if rows == nil {
		return []VendorAggregate{}
	}
	return rows
}

func cloneBranches(rows []BranchAggregate) []BranchAggregate {
	if rows == nil {
		return nil
	}
	out := make([]BranchAggregate, len(rows))
	copy(out, rows)
	return out
}

func cloneVendors(rows []VendorAggregate) []VendorAggregate {
	if rows == nil {
		return nil
	}
	out := make([]VendorAggregate, len(rows))
	copy(out, rows)
	return out
}

func nonNilCategories(rows []CategorySales) []CategorySales {
	if rows == nil {
		return []CategorySales{}
	}
	return rows
}

func cloneCategories(rows []CategorySales) []CategorySales {
	if rows == nil {
		return nil
	}
	out := make([]CategorySales, len(rows))
	copy(out, rows)
	return out
}

func cloneDetail(d VendorDetail) VendorDetail {
	out := d
	if d.TopProducts != nil {
		out.TopProducts = make([]ProductLine, len(d.TopProducts))
		copy(out.TopProducts, d.TopProducts)
	}
	if d.FirstSaleDate != nil {
		t := *d.FirstSaleDate
		out.FirstSaleDate = &t
	}
	if d.LastSaleDate != nil {
		t := *d.LastSaleDate
		out.LastSaleDate = &t
	}
	return out
}
