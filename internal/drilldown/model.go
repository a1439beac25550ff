package drilldown

import (
	"context"
	"time"
)

// DataProvider is the query contract the controller fetches aggregates from.
// Implementations own transport details, timeouts and status translation.
type DataProvider interface {
	FetchBranchRanking(ctx context.Context, rng DateRange) ([]BranchAggregate, error)
	FetchVendorsForBranch(ctx context.Context, branchID int64, rng DateRange) ([]VendorAggregate, error)
	FetchVendorDetail(ctx context.Context, vendorID int64, rng DateRange) (VendorDetail, error)
	FetchBranchCategories(ctx context.Context, branchID int64, rng DateRange) ([]CategorySales, error)
}

// DateRange is an inclusive calendar window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate reports ErrInvalidRange when Start falls after End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if r.Start.After(r.End) {
		return ErrInvalidRange
	}
	return nil
}

// Equal compares both bounds at instant precision.
func (r DateRange) Equal(other DateRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	if r.Start.After(r.End) {
		return 0
	}
	return int(civilDay(r.End).Sub(civilDay(r.Start))/(24*time.Hour)) + 1
}

// StatusLevel is the traffic light assigned to a branch.
type StatusLevel string

const (
	StatusExcellent StatusLevel = "excellent"
	StatusOnTrack   StatusLevel = "on_track"
	StatusLow       StatusLevel = "low"
	StatusNoData    StatusLevel = "no_data"
)

// VendorTier classifies a salesperson by absolute activity.
type VendorTier string

const (
	TierExcellent  VendorTier = "excellent"
	TierGood       VendorTier = "good"
	TierInProgress VendorTier = "in_progress"
	TierLow        VendorTier = "low"
)

// BranchAggregate is one row of the branch ranking.
type BranchAggregate struct {
	ID                  int64       `json:"id"`
	Name                string      `json:"name"`
	Location            string      `json:"location"`
	TotalSales          float64     `json:"total_sales"`
	TransactionCount    int64       `json:"transaction_count"`
	AverageTicket       float64     `json:"average_ticket"`
	Rank                int         `json:"rank"`
	ShareOfTotalPercent float64     `json:"share_of_total_percent"`
	StatusLevel         StatusLevel `json:"status_level"`
}

// VendorAggregate summarises one salesperson within a branch.
type VendorAggregate struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	LastName   string  `json:"last_name"`
	NationalID string  `json:"national_id"`
	BranchID   int64   `json:"branch_id"`
	SalesCount int64   `json:"sales_count"`
	TotalSales float64 `json:"total_sales"`
}

// FullName joins first and last name.
func (v VendorAggregate) FullName() string {
	if v.LastName == "" {
		return v.Name
	}
	if v.Name == "" {
		return v.LastName
	}
	return v.Name + " " + v.LastName
}

// CategorySales is one row of a branch's sales breakdown by product category.
type CategorySales struct {
	Category     string  `json:"category"`
	SalesCount   int64   `json:"sales_count"`
	UnitsSold    int64   `json:"units_sold"`
	Revenue      float64 `json:"revenue"`
	SharePercent float64 `json:"share_percent"`
}

// ProductLine is a product sold by a vendor within the range.
type ProductLine struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Description      string  `json:"description,omitempty"`
	UnitsSold        int64   `json:"units_sold"`
	TotalRevenue     float64 `json:"total_revenue"`
	TransactionCount int64   `json:"transaction_count"`
}

// VendorDetail extends a vendor aggregate with its period statistics.
type VendorDetail struct {
	VendorAggregate
	AverageTicket      float64       `json:"average_ticket"`
	UnitsSold          int64         `json:"units_sold"`
	ProductsSoldCount  int64         `json:"products_sold_count"`
	BranchSharePercent float64       `json:"branch_share_percent"`
	FirstSaleDate      *time.Time    `json:"first_sale_date,omitempty"`
	LastSaleDate       *time.Time    `json:"last_sale_date,omitempty"`
	TopProducts        []ProductLine `json:"top_products"`
}

// Product looks up a product line by id.
func (d VendorDetail) Product(id int64) (ProductLine, bool) {
	for _, p := range d.TopProducts {
		if p.ID == id {
			return p, true
		}
	}
	return ProductLine{}, false
}

// ProductFocus is the product-level view derived from an already fetched
// vendor detail.
type ProductFocus struct {
	ProductLine
	AverageTicket        float64 `json:"average_ticket"`
	ShareOfVendorPercent float64 `json:"share_of_vendor_percent"`
}

// VendorStanding is a vendor row enriched for the team table.
type VendorStanding struct {
	Vendor          VendorAggregate `json:"vendor"`
	AverageTicket   float64         `json:"average_ticket"`
	Tier            VendorTier      `json:"tier"`
	ProgressPercent float64         `json:"progress_percent"`
}

// TeamSummary aggregates the vendor list of the selected branch.
type TeamSummary struct {
	TotalSales    float64          `json:"total_sales"`
	Operations    int64            `json:"operations"`
	AverageTicket float64          `json:"average_ticket"`
	BestVendor    *VendorAggregate `json:"best_vendor,omitempty"`
	Standings     []VendorStanding `json:"standings"`
}

// Selection is the drill-down state owned by the controller.
type Selection struct {
	Range     DateRange `json:"range"`
	Preset    Preset    `json:"preset"`
	BranchID  *int64    `json:"branch_id,omitempty"`
	VendorID  *int64    `json:"vendor_id,omitempty"`
	ProductID *int64    `json:"product_id,omitempty"`
}

// Depth reports the state-machine level implied by the selection.
func (s Selection) Depth() Depth {
	switch {
	case s.ProductID != nil:
		return DepthProduct
	case s.VendorID != nil:
		return DepthVendor
	case s.BranchID != nil:
		return DepthBranch
	default:
		return DepthRoot
	}
}

// Validate checks the range and the parent/child ordering of ids.
func (s Selection) Validate() error {
	if err := s.Range.Validate(); err != nil {
		return err
	}
	if s.VendorID != nil && s.BranchID == nil {
		return ErrInvalidSelection
	}
	if s.ProductID != nil && s.VendorID == nil {
		return ErrInvalidSelection
	}
	return nil
}

func (s Selection) clone() Selection {
	out := s
	out.BranchID = cloneID(s.BranchID)
	out.VendorID = cloneID(s.VendorID)
	out.ProductID = cloneID(s.ProductID)
	return out
}

// Depth is the drill-down level.
type Depth int

const (
	DepthRoot Depth = iota
	DepthBranch
	DepthVendor
	DepthProduct
)

func (d Depth) String() string {
	switch d {
	case DepthBranch:
		return "branch"
	case DepthVendor:
		return "vendor"
	case DepthProduct:
		return "product"
	default:
		return "root"
	}
}

// Level identifies an independently fetched aggregate.
type Level int

const (
	LevelBranches Level = iota
	LevelVendors
	LevelVendorDetail
	LevelCategories
)

func (l Level) String() string {
	switch l {
	case LevelBranches:
		return "branches"
	case LevelVendors:
		return "vendors"
	case LevelVendorDetail:
		return "vendor_detail"
	case LevelCategories:
		return "categories"
	default:
		return "unknown"
	}
}

// LevelStatus describes the freshness of one level of the snapshot.
type LevelStatus struct {
	Loading   bool
	LastError *FetchError
	// Range is the window the level's data was computed under; zero when the
	// level holds no data.
	Range DateRange
}

// Snapshot is a consistent, detached copy of the controller state.
type Snapshot struct {
	Selection    Selection
	Branches     []BranchAggregate
	Vendors      []VendorAggregate
	Categories   []CategorySales
	Team         *TeamSummary
	VendorDetail *VendorDetail
	Product      *ProductFocus

	BranchesStatus   LevelStatus
	VendorsStatus    LevelStatus
	DetailStatus     LevelStatus
	CategoriesStatus LevelStatus
}

// Depth is a shortcut for Selection.Depth.
func (s Snapshot) Depth() Depth {
	return s.Selection.Depth()
}

// Status returns the status of the given level.
func (s Snapshot) Status(level Level) LevelStatus {
	switch level {
	case LevelVendors:
		return s.VendorsStatus
	case LevelVendorDetail:
		return s.DetailStatus
	case LevelCategories:
		return s.CategoriesStatus
	default:
		return s.BranchesStatus
	}
}

// Branch returns the ranking row of the selected branch, if loaded.
func (s Snapshot) Branch() (BranchAggregate, bool) {
	if s.Selection.BranchID == nil {
		return BranchAggregate{}, false
	}
	for _, b := range s.Branches {
		if b.ID == *s.Selection.BranchID {
			return b, true
		}
	}
	return BranchAggregate{}, false
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// ID returns a pointer to v; handy for selection calls.
func ID(v int64) *int64 {
	return &v
}

// civilDay maps t's calendar date onto UTC midnight, so day arithmetic is
// unaffected by DST shifts in t's zone.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
