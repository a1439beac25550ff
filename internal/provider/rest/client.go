// Package rest implements the dashboard query contracts against the sales
// backend's JSON API. Every response is wrapped in a
// {"success", "message", "data"} envelope.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

const (
	// DefaultTimeout bounds a whole request, body included.
	DefaultTimeout = 10 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 8 * time.Second

	maxBodyBytes = 4 << 20
	dateLayout   = "2006-01-02"
)

var (
	// ErrUnavailable wraps transport failures (refused, reset, timeout).
	ErrUnavailable = errors.New("rest: backend unavailable")
	// ErrMalformed reports a body that could not be decoded.
	ErrMalformed = errors.New("rest: malformed response")
	// ErrRejected reports an envelope with success=false.
	ErrRejected = errors.New("rest: request rejected")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest: backend returned %d", e.Code)
	}
	return fmt.Sprintf("rest: backend returned %d: %s", e.Code, e.Message)
}

// NewHTTPClient creates an HTTP client with bounded timeouts and no redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   DialTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Client talks to the sales backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client rooted at baseURL, e.g. http://localhost:3001/api.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rest: unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{base: u, http: NewHTTPClient(timeout), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ drilldown.DataProvider  = (*Client)(nil)
	_ analytics.CompanySource = (*Client)(nil)
)

// FetchBranchRanking loads the branch ranking for rng.
func (c *Client) FetchBranchRanking(ctx context.Context, rng drilldown.DateRange) ([]drilldown.BranchAggregate, error) {
	var rows []branchRankingDTO
	if err := c.get(ctx, "/dashboard/sucursales/ranking", rangeQuery(rng), &rows); err != nil {
		return nil, err
	}
	out := make([]drilldown.BranchAggregate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAggregate())
	}
	return out, nil
}

// FetchVendorsForBranch loads the salespeople of a branch for rng.
func (c *Client) FetchVendorsForBranch(ctx context.Context, branchID int64, rng drilldown.DateRange) ([]drilldown.VendorAggregate, error) {
	var rows []vendorDTO
	path := "/vendedores/sucursal/" + strconv.FormatInt(branchID, 10)
	if err := c.get(ctx, path, rangeQuery(rng), &rows); err != nil {
		return nil, err
	}
	out := make([]drilldown.VendorAggregate, 0, len(rows))
	for _, row := range rows {
		v := row.toAggregate()
		if v.BranchID == 0 {
			v.BranchID = branchID
		}
		out = append(out, v)
	}
	return out, nil
}

// FetchVendorDetail loads one vendor's statistics and products for rng.
func (c *Client) FetchVendorDetail(ctx context.Context, vendorID int64, rng drilldown.DateRange) (drilldown.VendorDetail, error) {
	var dto vendorDetailDTO
	path := "/vendedores/" + strconv.FormatInt(vendorID, 10) + "/detalle"
	if err := c.get(ctx, path, rangeQuery(rng), &dto); err != nil {
		return drilldown.VendorDetail{}, err
	}
	detail, err := dto.toDetail()
	if err != nil {
		return drilldown.VendorDetail{}, err
	}
	if detail.ID == 0 {
		detail.ID = vendorID
	}
	return detail, nil
}

// FetchBranchCategories loads the sales of a branch grouped by product
// category for rng.
func (c *Client) FetchBranchCategories(ctx context.Context, branchID int64, rng drilldown.DateRange) ([]drilldown.CategorySales, error) {
	var rows []categoryDTO
	query := rangeQuery(rng)
	query.Set("sucursalId", strconv.FormatInt(branchID, 10))
	if err := c.get(ctx, "/dashboard/categorias", query, &rows); err != nil {
		return nil, err
	}
	out := make([]drilldown.CategorySales, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCategory())
	}
	return out, nil
}

// backendPeriods maps trend granularities onto the backend's period names.
var backendPeriods = map[analytics.Granularity]string{
	analytics.GranularityDay:   "dia",
	analytics.GranularityWeek:  "semana",
	analytics.GranularityMonth: "mes",
}

// FetchSalesTrend loads the company sales of the trailing days, bucketed by
// granularity.
func (c *Client) FetchSalesTrend(ctx context.Context, granularity analytics.Granularity, days int) ([]analytics.TrendPoint, error) {
	period, ok := backendPeriods[granularity]
	if !ok {
		return nil, fmt.Errorf("rest: unsupported granularity %q", granularity)
	}
	if days <= 0 {
		days = analytics.DefaultTrendDays
	}
	query := url.Values{}
	query.Set("periodo", period)
	query.Set("dias", strconv.Itoa(days))

	var rows []trendPointDTO
	if err := c.get(ctx, "/dashboard/ventas/periodo", query, &rows); err != nil {
		return nil, err
	}
	out := make([]analytics.TrendPoint, 0, len(rows))
	for _, row := range rows {
		point, err := row.toPoint()
		if err != nil {
			return nil, err
		}
		out = append(out, point)
	}
	return out, nil
}

// FetchTopProducts loads the company best sellers.
func (c *Client) FetchTopProducts(ctx context.Context, limit int) ([]analytics.TopProduct, error) {
	if limit <= 0 {
		limit = analytics.DefaultTopProducts
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var rows []topProductDTO
	if err := c.get(ctx, "/dashboard/productos/top", query, &rows); err != nil {
		return nil, err
	}
	out := make([]analytics.TopProduct, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProduct())
	}
	return out, nil
}

// FetchGeneralKPIs loads the company-wide KPI block.
func (c *Client) FetchGeneralKPIs(ctx context.Context) (analytics.GeneralKPIs, error) {
	var dto generalKPIsDTO
	if err := c.get(ctx, "/dashboard/kpis", nil, &dto); err != nil {
		return analytics.GeneralKPIs{}, err
	}
	return dto.toKPIs(), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	endpoint := c.base.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "salesdash/1.0")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	c.logger.Debug("backend request",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = env.Message
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
	}
	if !env.Success {
		if env.Message == "" {
			return ErrRejected
		}
		return fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func rangeQuery(rng drilldown.DateRange) url.Values {
	q := url.Values{}
	q.Set("fechaInicio", rng.Start.Format(dateLayout))
	q.Set("fechaFin", rng.End.Format(dateLayout))
	return q
}
