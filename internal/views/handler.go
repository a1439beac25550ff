package views

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/salesdash/salesdash/internal/analytics/export"
	"github.com/salesdash/salesdash/internal/analytics/svg"
	"github.com/salesdash/salesdash/internal/drilldown"
	"github.com/salesdash/salesdash/internal/platform/httpx"
)

const requestTimeout = 20 * time.Second

// Handler serves the view API.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	formatter *Formatter
	validator *validator.Validate
	csvPool   sync.Pool
}

// NewHandler constructs the views HTTP handler.
func NewHandler(logger *slog.Logger, registry *Registry, formatter *Formatter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		registry:  registry,
		formatter: formatter,
		validator: validator.New(),
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

func (h *Handler) handlePresets(w http.ResponseWriter, r *http.Request) {
	now := h.registry.Now()
	out := make([]presetResponse, 0, len(drilldown.Presets()))
	for _, p := range drilldown.Presets() {
		rng, err := p.Resolve(now)
		if err != nil {
			continue
		}
		out = append(out, presetResponse{
			Preset: p,
			Label:  p.Label(),
			Start:  rng.Start.Format(dateLayout),
			End:    rng.End.Format(dateLayout),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createViewRequest
	if !h.decode(w, r, &req) {
		return
	}
	sel := drilldown.DefaultSelection(h.registry.Now())
	if req.Preset != "" || req.Start != "" || req.End != "" {
		rng, preset, err := h.resolveRange(req.rangeRequest)
		if err != nil {
			h.respondError(w, err)
			return
		}
		sel.Range, sel.Preset = rng, preset
	}
	sel.BranchID, sel.VendorID, sel.ProductID = req.BranchID, req.VendorID, req.ProductID

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	view, err := h.registry.Create(ctx, sel)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Location", "/api/views/"+view.ID.String())
	httpx.JSON(w, http.StatusCreated, h.buildViewResponse(view))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, h.buildViewResponse(view))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "viewID"))
	if err != nil {
		h.respondError(w, fmt.Errorf("%w: view id", httpx.ErrValidation))
		return
	}
	if err := h.registry.Delete(id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRange(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var err error
	switch preset := drilldown.Preset(req.Preset); {
	case preset != "" && preset != drilldown.PresetCustomRange:
		err = view.Controller().ApplyPreset(ctx, preset)
	default:
		var rng drilldown.DateRange
		rng, _, err = h.resolveRange(req)
		if err == nil {
			err = view.Controller().SetDateRange(ctx, rng)
		}
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.buildViewResponse(view))
}

func (h *Handler) handleBranch(w http.ResponseWriter, r *http.Request) {
	h.handleSelect(w, r, func(ctx context.Context, ctrl *drilldown.Controller, id *int64) error {
		return ctrl.SelectBranch(ctx, id)
	})
}

func (h *Handler) handleVendor(w http.ResponseWriter, r *http.Request) {
	h.handleSelect(w, r, func(ctx context.Context, ctrl *drilldown.Controller, id *int64) error {
		return ctrl.SelectVendor(ctx, id)
	})
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	h.handleSelect(w, r, func(_ context.Context, ctrl *drilldown.Controller, id *int64) error {
		return ctrl.SelectProduct(id)
	})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request, apply func(context.Context, *drilldown.Controller, *int64) error) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := apply(ctx, view.Controller(), req.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.buildViewResponse(view))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	h.registry.Reload(ctx, view)
	httpx.JSON(w, http.StatusOK, h.buildViewResponse(view))
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap := view.Controller().Snapshot()
	period := drilldown.Describe(snap.Selection.Range)

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.csvPool.Put(buf)

	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	var (
		filename string
		err      error
	)
	switch kind {
	case "", "ranking":
		filename = "ranking-sucursales.csv"
		err = export.WriteRankingCSV(buf, period, snap.Branches)
	case "team":
		if snap.Team == nil {
			h.respondError(w, fmt.Errorf("%w: no team loaded for the current selection", httpx.ErrUnprocessable))
			return
		}
		name := ""
		if branch, ok := snap.Branch(); ok {
			name = branch.Name
		}
		filename = "equipo-sucursal.csv"
		err = export.WriteTeamCSV(buf, period, name, *snap.Team)
	case "categories":
		if snap.Categories == nil {
			h.respondError(w, fmt.Errorf("%w: no category breakdown loaded for the current selection", httpx.ErrUnprocessable))
			return
		}
		name := ""
		if branch, ok := snap.Branch(); ok {
			name = branch.Name
		}
		filename = "categorias-sucursal.csv"
		err = export.WriteCategoriesCSV(buf, period, name, snap.Categories)
	case "trend":
		overview, _ := view.Overview()
		if overview == nil {
			h.respondError(w, fmt.Errorf("%w: sales trend not loaded", httpx.ErrUnprocessable))
			return
		}
		filename = "tendencia-ventas.csv"
		err = export.WriteTrendCSV(buf, *overview)
	default:
		h.respondError(w, fmt.Errorf("%w: unknown export kind %q", httpx.ErrValidation, kind))
		return
	}
	if err != nil {
		h.serverError(w, "export csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleRankingChart(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap := view.Controller().Snapshot()
	if len(snap.Branches) == 0 {
		h.respondError(w, fmt.Errorf("%w: ranking not loaded", httpx.ErrUnprocessable))
		return
	}
	bars := make([]svg.Bar, 0, len(snap.Branches))
	for _, b := range snap.Branches {
		bars = append(bars, svg.Bar{Label: b.Name, Value: b.TotalSales, Color: statusColor(b.StatusLevel)})
	}
	chart, err := svg.Bars(0, 0, bars, svg.BarOpts{
		Title:       "Ranking de sucursales",
		Description: "Ventas por sucursal, " + drilldown.Describe(snap.Selection.Range),
	})
	if err != nil {
		h.serverError(w, "render ranking chart", err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write([]byte(chart))
}

func statusColor(level drilldown.StatusLevel) string {
	switch level {
	case drilldown.StatusExcellent:
		return "#22c55e"
	case drilldown.StatusOnTrack:
		return "#eab308"
	case drilldown.StatusLow:
		return "#ef4444"
	default:
		return "#94a3b8"
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*View, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "viewID"))
	if err != nil {
		h.respondError(w, fmt.Errorf("%w: view id", httpx.ErrValidation))
		return nil, false
	}
	view, err := h.registry.Get(id)
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return view, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				msgs = append(msgs, fieldErr.Field()+": "+fieldErr.Tag())
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// resolveRange turns a request into a range: a named preset wins, otherwise
// both bounds are required.
func (h *Handler) resolveRange(req rangeRequest) (drilldown.DateRange, drilldown.Preset, error) {
	now := h.registry.Now()
	preset := drilldown.Preset(req.Preset)
	if preset != "" && preset != drilldown.PresetCustomRange {
		rng, err := preset.Resolve(now)
		return rng, preset, err
	}
	if req.Start == "" || req.End == "" {
		return drilldown.DateRange{}, "", fmt.Errorf("%w: start and end are required without a preset", httpx.ErrValidation)
	}
	start, err := time.ParseInLocation(dateLayout, req.Start, now.Location())
	if err != nil {
		return drilldown.DateRange{}, "", fmt.Errorf("%w: start: %v", httpx.ErrValidation, err)
	}
	end, err := time.ParseInLocation(dateLayout, req.End, now.Location())
	if err != nil {
		return drilldown.DateRange{}, "", fmt.Errorf("%w: end: %v", httpx.ErrValidation, err)
	}
	rng := drilldown.DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return drilldown.DateRange{}, "", err
	}
	return rng, drilldown.PresetCustomRange, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrViewNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, ErrTooManyViews):
		err = fmt.Errorf("%w: %w", httpx.ErrUnavailable, err)
	case errors.Is(err, drilldown.ErrInvalidRange), errors.Is(err, drilldown.ErrUnknownPreset):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, drilldown.ErrInvalidSelection):
		err = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	}
	if !httpx.IsClientError(err) {
		h.logger.Error("views request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
