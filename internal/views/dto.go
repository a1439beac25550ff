package views

import (
	"time"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

const dateLayout = "2006-01-02"

type rangeRequest struct {
	Preset string `json:"preset" validate:"omitempty,oneof=30d 90d ytd custom"`
	Start  string `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End    string `json:"end" validate:"omitempty,datetime=2006-01-02"`
}

type createViewRequest struct {
	rangeRequest
	BranchID  *int64 `json:"branch_id" validate:"omitempty,gt=0"`
	VendorID  *int64 `json:"vendor_id" validate:"omitempty,gt=0"`
	ProductID *int64 `json:"product_id" validate:"omitempty,gt=0"`
}

// selectRequest carries the id to focus; null clears the level.
type selectRequest struct {
	ID *int64 `json:"id" validate:"omitempty,gt=0"`
}

type selectionResponse struct {
	Preset      drilldown.Preset `json:"preset"`
	PresetLabel string           `json:"preset_label"`
	Start       string           `json:"start"`
	End         string           `json:"end"`
	Label       string           `json:"label"`
	Depth       string           `json:"depth"`
	BranchID    *int64           `json:"branch_id"`
	VendorID    *int64           `json:"vendor_id"`
	ProductID   *int64           `json:"product_id"`
}

type levelStatusResponse struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	// Stale is set when the data was computed under another range than the
	// current selection, typically after a failed refetch.
	Stale bool `json:"stale"`
}

type viewResponse struct {
	ID           string                         `json:"id"`
	CreatedAt    time.Time                      `json:"created_at"`
	Selection    selectionResponse              `json:"selection"`
	Cards        []Card                         `json:"cards"`
	KPIs         *analytics.GeneralKPIs         `json:"kpis,omitempty"`
	KPIError     string                         `json:"kpi_error,omitempty"`
	Overview     *analytics.Overview            `json:"overview,omitempty"`
	OverviewErr  string                         `json:"overview_error,omitempty"`
	Branches     []drilldown.BranchAggregate    `json:"branches"`
	BestBranch   *drilldown.BranchAggregate     `json:"best_branch,omitempty"`
	WorstBranch  *drilldown.BranchAggregate     `json:"worst_branch,omitempty"`
	Estimate     *drilldown.PeriodEstimate      `json:"branch_estimate,omitempty"`
	Vendors      []drilldown.VendorAggregate    `json:"vendors,omitempty"`
	Team         *drilldown.TeamSummary         `json:"team,omitempty"`
	Categories   []drilldown.CategorySales      `json:"categories,omitempty"`
	VendorDetail *drilldown.VendorDetail        `json:"vendor_detail,omitempty"`
	Product      *drilldown.ProductFocus        `json:"product,omitempty"`
	Status       map[string]levelStatusResponse `json:"status"`
}

type presetResponse struct {
	Preset drilldown.Preset `json:"preset"`
	Label  string           `json:"label"`
	Start  string           `json:"start"`
	End    string           `json:"end"`
}

func toSelectionResponse(sel drilldown.Selection) selectionResponse {
	return selectionResponse{
		Preset:      sel.Preset,
		PresetLabel: sel.Preset.Label(),
		Start:       sel.Range.Start.Format(dateLayout),
		End:         sel.Range.End.Format(dateLayout),
		Label:       drilldown.Describe(sel.Range),
		Depth:       sel.Depth().String(),
		BranchID:    sel.BranchID,
		VendorID:    sel.VendorID,
		ProductID:   sel.ProductID,
	}
}

func toLevelStatus(st drilldown.LevelStatus, current drilldown.DateRange) levelStatusResponse {
	out := levelStatusResponse{Loading: st.Loading}
	if st.LastError != nil {
		out.Error = st.LastError.Error()
	}
	if !st.Range.Start.IsZero() {
		out.Start = st.Range.Start.Format(dateLayout)
		out.End = st.Range.End.Format(dateLayout)
		out.Stale = !st.Range.Equal(current)
	}
	return out
}

func (h *Handler) buildViewResponse(view *View) viewResponse {
	snap := view.Controller().Snapshot()
	kpis, kpiErr := view.KPIs()
	overview, overviewErr := view.Overview()

	resp := viewResponse{
		ID:           view.ID.String(),
		CreatedAt:    view.CreatedAt,
		Selection:    toSelectionResponse(snap.Selection),
		KPIs:         kpis,
		Overview:     overview,
		Branches:     snap.Branches,
		Vendors:      snap.Vendors,
		Team:         snap.Team,
		Categories:   snap.Categories,
		VendorDetail: snap.VendorDetail,
		Product:      snap.Product,
		Status: map[string]levelStatusResponse{
			drilldown.LevelBranches.String():     toLevelStatus(snap.BranchesStatus, snap.Selection.Range),
			drilldown.LevelVendors.String():      toLevelStatus(snap.VendorsStatus, snap.Selection.Range),
			drilldown.LevelVendorDetail.String(): toLevelStatus(snap.DetailStatus, snap.Selection.Range),
			drilldown.LevelCategories.String():   toLevelStatus(snap.CategoriesStatus, snap.Selection.Range),
		},
	}
	if resp.Branches == nil {
		resp.Branches = []drilldown.BranchAggregate{}
	}
	if kpiErr != nil {
		resp.KPIError = kpiErr.Error()
	}
	if overviewErr != nil {
		resp.OverviewErr = overviewErr.Error()
	}
	resp.BestBranch, resp.WorstBranch = drilldown.BestAndWorst(snap.Branches)
	if branch, ok := snap.Branch(); ok {
		trailing := 0.0
		if kpis != nil {
			trailing = kpis.EstimatedMonthlySales()
		}
		filtered := snap.Selection.Preset == drilldown.PresetCustomRange || kpis == nil
		estimate := drilldown.EstimateBranchPeriodSales(branch, trailing, filtered)
		resp.Estimate = &estimate
	}
	resp.Cards = h.formatter.BuildCards(snap, kpis, resp.Estimate)
	return resp
}
