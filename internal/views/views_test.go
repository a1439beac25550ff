package views

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

// ============================================================================
// FAKES
// ============================================================================

type stubBackend struct {
	mu          sync.Mutex
	kpiErr      error
	rankErr     error
	trendErr    error
	lastRange   drilldown.DateRange
	granularity analytics.Granularity
	trendDays   int
	topLimit    int
}

func (s *stubBackend) FetchBranchRanking(_ context.Context, rng drilldown.DateRange) ([]drilldown.BranchAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRange = rng
	if s.rankErr != nil {
		return nil, s.rankErr
	}
	return []drilldown.BranchAggregate{
		{ID: 1, Name: "Centro", Location: "Córdoba", TotalSales: 3000, TransactionCount: 30},
		{ID: 2, Name: "Norte", Location: "Salta", TotalSales: 1000, TransactionCount: 10},
	}, nil
}

func (s *stubBackend) FetchVendorsForBranch(_ context.Context, branchID int64, _ drilldown.DateRange) ([]drilldown.VendorAggregate, error) {
	return []drilldown.VendorAggregate{
		{ID: branchID*10 + 1, Name: "Ana", LastName: "Paz", BranchID: branchID, SalesCount: 12, TotalSales: 2000},
		{ID: branchID*10 + 2, Name: "Luis", BranchID: branchID, SalesCount: 3, TotalSales: 1000},
	}, nil
}

func (s *stubBackend) FetchVendorDetail(_ context.Context, vendorID int64, _ drilldown.DateRange) (drilldown.VendorDetail, error) {
	return drilldown.VendorDetail{
		VendorAggregate: drilldown.VendorAggregate{ID: vendorID, Name: "Ana", LastName: "Paz", SalesCount: 4, TotalSales: 400},
		UnitsSold:       9,
		TopProducts: []drilldown.ProductLine{
			{ID: 100, Name: "Yerba", Category: "Almacén", TotalRevenue: 300, TransactionCount: 3, UnitsSold: 6},
			{ID: 200, Name: "Mate", Category: "Bazar", TotalRevenue: 100, TransactionCount: 1, UnitsSold: 3},
		},
	}, nil
}

func (s *stubBackend) FetchBranchCategories(_ context.Context, branchID int64, _ drilldown.DateRange) ([]drilldown.CategorySales, error) {
	return []drilldown.CategorySales{
		{Category: "Bazar", SalesCount: 2, UnitsSold: 3, Revenue: 100},
		{Category: "Almacén", SalesCount: 6, UnitsSold: 12, Revenue: float64(branchID) * 300},
	}, nil
}

func (s *stubBackend) FetchSalesTrend(_ context.Context, granularity analytics.Granularity, days int) ([]analytics.TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granularity, s.trendDays = granularity, days
	if s.trendErr != nil {
		return nil, s.trendErr
	}
	return []analytics.TrendPoint{
		{Date: fixedNow.AddDate(0, 0, -1), TotalSales: 250, Transactions: 5, AverageTicket: 50},
		{Date: fixedNow, TotalSales: 150, Transactions: 3, AverageTicket: 50},
	}, nil
}

func (s *stubBackend) FetchTopProducts(_ context.Context, limit int) ([]analytics.TopProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topLimit = limit
	return []analytics.TopProduct{
		{ID: 100, Name: "Yerba", Category: "Almacén", UnitsSold: 40, Revenue: 4000, Transactions: 20},
	}, nil
}

func (s *stubBackend) FetchGeneralKPIs(context.Context) (analytics.GeneralKPIs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kpiErr != nil {
		return analytics.GeneralKPIs{}, s.kpiErr
	}
	return analytics.GeneralKPIs{TotalSales: 4000, DailyAverage: 100, TotalBranches: 2}, nil
}

var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(backend *stubBackend, opts ...RegistryOption) (*Registry, *testClock) {
	clock := &testClock{now: fixedNow}
	base := []RegistryOption{
		WithRegistryClock(clock.Now),
		WithRegistryLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewRegistry(backend, backend, append(base, opts...)...), clock
}

func newTestServer(t *testing.T, backend *stubBackend) (*httptest.Server, *Registry) {
	t.Helper()
	registry, _ := newTestRegistry(backend)
	formatter, err := NewFormatter("es")
	require.NoError(t, err)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), registry, formatter)
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeView(t *testing.T, data []byte) viewResponse {
	t.Helper()
	var out viewResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func createView(t *testing.T, srv *httptest.Server, body string) viewResponse {
	t.Helper()
	resp, data := do(t, http.MethodPost, srv.URL+"/api/views", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decodeView(t, data)
}

func cardKeys(cards []Card) []string {
	keys := make([]string, 0, len(cards))
	for _, c := range cards {
		keys = append(keys, c.Key)
	}
	return keys
}

// ============================================================================
// REGISTRY
// ============================================================================

func TestRegistryCreateLoadsRankingAndKPIs(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{})
	view, err := registry.Create(context.Background(), drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	snap := view.Controller().Snapshot()
	require.Len(t, snap.Branches, 2)
	assert.Equal(t, 1, snap.Branches[0].Rank)
	kpis, kpiErr := view.KPIs()
	require.NoError(t, kpiErr)
	require.NotNil(t, kpis)
	assert.Equal(t, int64(2), kpis.TotalBranches)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryKPIFailureIsRecorded(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{kpiErr: errors.New("kpis down")})
	view, err := registry.Create(context.Background(), drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	kpis, kpiErr := view.KPIs()
	assert.Nil(t, kpis)
	assert.EqualError(t, kpiErr, "kpis down")
	assert.Len(t, view.Controller().Snapshot().Branches, 2, "ranking loads independently of kpis")
}

func TestRegistryLoadsOverview(t *testing.T) {
	backend := &stubBackend{}
	registry, _ := newTestRegistry(backend, WithTrend(analytics.GranularityWeek, 14), WithTopProducts(3))
	view, err := registry.Create(context.Background(), drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	overview, overviewErr := view.Overview()
	require.NoError(t, overviewErr)
	require.NotNil(t, overview)
	assert.Equal(t, analytics.GranularityWeek, overview.Granularity)
	assert.Equal(t, 14, overview.Days)
	assert.Len(t, overview.Trend, 2)
	assert.InDelta(t, 400, overview.TrendTotal(), 1e-9)
	require.Len(t, overview.TopProducts, 1)
	assert.Equal(t, "Yerba", overview.TopProducts[0].Name)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, analytics.GranularityWeek, backend.granularity)
	assert.Equal(t, 14, backend.trendDays)
	assert.Equal(t, 3, backend.topLimit)
}

func TestRegistryOverviewDefaults(t *testing.T) {
	backend := &stubBackend{}
	registry, _ := newTestRegistry(backend, WithTrend("", 0), WithTopProducts(-1))
	_, err := registry.Create(context.Background(), drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, analytics.GranularityDay, backend.granularity)
	assert.Equal(t, analytics.DefaultTrendDays, backend.trendDays)
	assert.Equal(t, analytics.DefaultTopProducts, backend.topLimit)
}

func TestRegistryOverviewFailureKeepsPreviousBlock(t *testing.T) {
	backend := &stubBackend{}
	registry, _ := newTestRegistry(backend)
	ctx := context.Background()
	view, err := registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	backend.mu.Lock()
	backend.trendErr = errors.New("trend down")
	backend.mu.Unlock()
	registry.Reload(ctx, view)

	overview, overviewErr := view.Overview()
	require.Error(t, overviewErr)
	assert.Contains(t, overviewErr.Error(), "sales trend: trend down")
	require.NotNil(t, overview, "previous overview is kept")
	assert.Len(t, overview.Trend, 2)
	kpis, kpiErr := view.KPIs()
	assert.NoError(t, kpiErr)
	assert.NotNil(t, kpis)
}

func TestRegistryGetAndDelete(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{})
	view, err := registry.Create(context.Background(), drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	got, err := registry.Get(view.ID)
	require.NoError(t, err)
	assert.Same(t, view, got)

	require.NoError(t, registry.Delete(view.ID))
	_, err = registry.Get(view.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)
	assert.ErrorIs(t, registry.Delete(view.ID), ErrViewNotFound)
	_, err = registry.Get(uuid.New())
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestRegistrySweepEvictsIdleViews(t *testing.T) {
	registry, clock := newTestRegistry(&stubBackend{}, WithIdleTTL(10*time.Minute))
	ctx := context.Background()
	idle, err := registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)
	active, err := registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)

	clock.Advance(8 * time.Minute)
	_, err = registry.Get(active.ID)
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, registry.Sweep())
	_, err = registry.Get(idle.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, err = registry.Get(active.ID)
	assert.NoError(t, err)
}

func TestRegistryCloseAll(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, registry.CloseAll())
	assert.Zero(t, registry.Len())
	assert.Zero(t, registry.CloseAll())
}

func TestRegistryMaxViews(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{}, WithMaxViews(1))
	ctx := context.Background()
	_, err := registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
	require.NoError(t, err)
	_, err = registry.Create(ctx, drilldown.DefaultSelection(fixedNow))
	assert.ErrorIs(t, err, ErrTooManyViews)
}

func TestRegistryRejectsInvalidInitialSelection(t *testing.T) {
	registry, _ := newTestRegistry(&stubBackend{})
	sel := drilldown.DefaultSelection(fixedNow)
	sel.ProductID = drilldown.ID(5)
	_, err := registry.Create(context.Background(), sel)
	assert.ErrorIs(t, err, drilldown.ErrInvalidSelection)
	assert.Zero(t, registry.Len())
}

// ============================================================================
// FORMATTER
// ============================================================================

func TestFormatterGroupsThousands(t *testing.T) {
	f, err := NewFormatter("es")
	require.NoError(t, err)
	assert.Equal(t, "1.234.567", f.Integer(1234567))
	assert.Equal(t, "$ 1.234.567", f.Currency(1234567.4))
	assert.Equal(t, "12,5 %", f.Percent(12.5))

	_, err = NewFormatter("")
	assert.NoError(t, err)
	_, err = NewFormatter("not a locale!")
	assert.Error(t, err)
}

// ============================================================================
// HTTP
// ============================================================================

func TestCreateViewDefaultsToLast30Days(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{}`)

	assert.Equal(t, drilldown.PresetLast30Days, view.Selection.Preset)
	assert.Equal(t, "2025-02-14", view.Selection.Start)
	assert.Equal(t, "2025-03-15", view.Selection.End)
	assert.Equal(t, "root", view.Selection.Depth)
	require.Len(t, view.Branches, 2)
	assert.Equal(t, drilldown.StatusExcellent, view.Branches[0].StatusLevel)
	require.NotNil(t, view.BestBranch)
	assert.Equal(t, int64(1), view.BestBranch.ID)
	assert.Contains(t, cardKeys(view.Cards), "estimated_monthly")
	assert.False(t, view.Status["branches"].Stale)
}

func TestCreateViewWithCustomRange(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)
	view := createView(t, srv, `{"start":"2025-01-01","end":"2025-01-31"}`)

	assert.Equal(t, drilldown.PresetCustomRange, view.Selection.Preset)
	assert.Equal(t, "01 Jan 2025 - 31 Jan 2025", view.Selection.Label)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 31, backend.lastRange.Days())
}

func TestCreateViewValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	cases := map[string]int{
		`{"start":"2025-02-01","end":"2025-01-01"}`: http.StatusBadRequest,
		`{"start":"01/02/2025","end":"2025-01-01"}`: http.StatusBadRequest,
		`{"start":"2025-01-01"}`:                    http.StatusBadRequest,
		`{"preset":"7d"}`:                           http.StatusBadRequest,
		`{"vendor_id":3}`:                           http.StatusUnprocessableEntity,
		`{"unknown":true}`:                          http.StatusBadRequest,
		`not json`:                                  http.StatusBadRequest,
	}
	for body, status := range cases {
		resp, data := do(t, http.MethodPost, srv.URL+"/api/views", body)
		assert.Equal(t, status, resp.StatusCode, "%s: %s", body, data)
	}
}

func TestDrillDownOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{"preset":"90d"}`)
	base := srv.URL + "/api/views/" + view.ID

	resp, data := do(t, http.MethodPut, base+"/branch", `{"id":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	branchView := decodeView(t, data)
	assert.Equal(t, "branch", branchView.Selection.Depth)
	require.NotNil(t, branchView.Team)
	assert.InDelta(t, 3000, branchView.Team.TotalSales, 1e-9)
	require.NotNil(t, branchView.Estimate)
	assert.Equal(t, drilldown.EstimateScaled, branchView.Estimate.Source)
	// 100/day × 30 days × 75 % share.
	assert.InDelta(t, 2250, branchView.Estimate.Value, 1e-9)
	assert.Contains(t, cardKeys(branchView.Cards), "best_vendor")
	require.Len(t, branchView.Categories, 2)
	assert.Equal(t, "Almacén", branchView.Categories[0].Category)
	assert.InDelta(t, 75, branchView.Categories[0].SharePercent, 1e-9)
	assert.Contains(t, cardKeys(branchView.Cards), "top_category")
	assert.False(t, branchView.Status["categories"].Loading)
	assert.Empty(t, branchView.Status["categories"].Error)

	resp, data = do(t, http.MethodPut, base+"/vendor", `{"id":99}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(data))

	resp, data = do(t, http.MethodPut, base+"/vendor", `{"id":11}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	vendorView := decodeView(t, data)
	require.NotNil(t, vendorView.VendorDetail)
	assert.InDelta(t, 100, vendorView.VendorDetail.AverageTicket, 1e-9)

	resp, data = do(t, http.MethodPut, base+"/product", `{"id":100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	productView := decodeView(t, data)
	assert.Equal(t, "product", productView.Selection.Depth)
	require.NotNil(t, productView.Product)
	assert.InDelta(t, 75, productView.Product.ShareOfVendorPercent, 1e-9)
	assert.Contains(t, cardKeys(productView.Cards), "product_share")

	resp, data = do(t, http.MethodPut, base+"/range", `{"start":"2025-01-01","end":"2025-01-31"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	rangeView := decodeView(t, data)
	assert.Equal(t, "product", rangeView.Selection.Depth, "range change keeps the path")
	assert.Equal(t, drilldown.EstimateFiltered, rangeView.Estimate.Source)

	resp, data = do(t, http.MethodPut, base+"/branch", `{"id":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	rootView := decodeView(t, data)
	assert.Equal(t, "root", rootView.Selection.Depth)
	assert.Nil(t, rootView.Team)
	assert.Nil(t, rootView.VendorDetail)
	assert.Nil(t, rootView.Categories)
	assert.Empty(t, rootView.Status["categories"].Start)
}

func TestRangeUpdateRejectsInvertedRange(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{}`)
	resp, _ := do(t, http.MethodPut, srv.URL+"/api/views/"+view.ID+"/range", `{"start":"2025-03-01","end":"2025-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := do(t, http.MethodGet, srv.URL+"/api/views/"+view.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, drilldown.PresetLast30Days, decodeView(t, data).Selection.Preset)
}

func TestFailedRefreshMarksStaleData(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)
	view := createView(t, srv, `{}`)

	backend.mu.Lock()
	backend.rankErr = errors.New("backend down")
	backend.mu.Unlock()
	resp, data := do(t, http.MethodPut, srv.URL+"/api/views/"+view.ID+"/range", `{"preset":"ytd"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	updated := decodeView(t, data)
	assert.Len(t, updated.Branches, 2, "previous ranking is kept")
	status := updated.Status["branches"]
	assert.True(t, status.Stale)
	assert.Contains(t, status.Error, "backend down")
	assert.Equal(t, "2025-02-14", status.Start)
}

func TestUnknownAndMalformedViewIDs(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/views/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/views/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteView(t *testing.T) {
	srv, registry := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{}`)
	resp, _ := do(t, http.MethodDelete, srv.URL+"/api/views/"+view.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, registry.Len())
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/views/"+view.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{}`)
	base := srv.URL + "/api/views/" + view.ID

	resp, data := do(t, http.MethodGet, base+"/export.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	resp, _ = do(t, http.MethodGet, base+"/export.csv?kind=team", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base+"/export.csv?kind=categories", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, base+"/branch", `{"id":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, data = do(t, http.MethodGet, base+"/export.csv?kind=team", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "Ana Paz")

	resp, data = do(t, http.MethodGet, base+"/export.csv?kind=categories", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="categorias-sucursal.csv"`, resp.Header.Get("Content-Disposition"))
	reader = csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err = reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"Branch", "Norte"}, records[1])
	assert.Equal(t, "Almacén", records[3][0])
	assert.Equal(t, "600.00", records[3][3])

	resp, data = do(t, http.MethodGet, base+"/export.csv?kind=trend", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "2025-03-15,150.00,3,50.00")

	resp, _ = do(t, http.MethodGet, base+"/export.csv?kind=pdf", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRankingChart(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	view := createView(t, srv, `{}`)
	resp, data := do(t, http.MethodGet, srv.URL+"/api/views/"+view.ID+"/ranking.svg", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(data), "<svg"))
	assert.Contains(t, string(data), "Centro")
}

func TestPresetsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	resp, data := do(t, http.MethodGet, srv.URL+"/api/presets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var presets []presetResponse
	require.NoError(t, json.Unmarshal(data, &presets))
	require.Len(t, presets, 3)
	assert.Equal(t, drilldown.PresetYearToDate, presets[2].Preset)
	assert.Equal(t, "2025-01-01", presets[2].Start)
}

func TestRefreshReloadsKPIs(t *testing.T) {
	backend := &stubBackend{kpiErr: errors.New("kpis down")}
	srv, _ := newTestServer(t, backend)
	view := createView(t, srv, `{}`)
	assert.Equal(t, "kpis down", view.KPIError)

	backend.mu.Lock()
	backend.kpiErr = nil
	backend.mu.Unlock()
	resp, data := do(t, http.MethodPost, srv.URL+"/api/views/"+view.ID+"/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	refreshed := decodeView(t, data)
	assert.Empty(t, refreshed.KPIError)
	require.NotNil(t, refreshed.KPIs)
	assert.InDelta(t, 3000, refreshed.KPIs.EstimatedMonthlySales(), 1e-9)
	require.NotNil(t, refreshed.Overview)
	assert.Len(t, refreshed.Overview.TopProducts, 1)
	assert.Empty(t, refreshed.OverviewErr)
}
