package drilldown

import "sort"

const (
	excellentFactor = 1.25
	onTrackFactor   = 0.85
)

// AverageTicket divides revenue by transactions, yielding 0 when there are none.
func AverageTicket(totalSales float64, transactions int64) float64 {
	if transactions <= 0 {
		return 0
	}
	return totalSales / float64(transactions)
}

// BranchStatus grades one branch against the ranking mean.
func BranchStatus(totalSales, mean float64) StatusLevel {
	if mean <= 0 {
		return StatusNoData
	}
	switch {
	case totalSales >= mean*excellentFactor:
		return StatusExcellent
	case totalSales >= mean*onTrackFactor:
		return StatusOnTrack
	default:
		return StatusLow
	}
}

// Tier grades a vendor by sale count. Revenue plays no part here.
func Tier(salesCount int64) VendorTier {
	switch {
	case salesCount <= 0:
		return TierLow
	case salesCount > 10:
		return TierExcellent
	case salesCount > 5:
		return TierGood
	default:
		return TierInProgress
	}
}

// SharePercent returns value as a percentage of total, 0 for a zero total.
func SharePercent(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return value / total * 100
}

// DeriveRanking recomputes rank, share, average ticket and status for a
// freshly fetched ranking. The input slice is left untouched.
func DeriveRanking(rows []BranchAggregate) []BranchAggregate {
	if rows == nil {
		return nil
	}
	out := make([]BranchAggregate, len(rows))
	copy(out, rows)

	var total float64
	for _, row := range out {
		total += row.TotalSales
	}
	mean := 0.0
	if len(out) > 0 {
		mean = total / float64(len(out))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalSales != out[j].TotalSales {
			return out[i].TotalSales > out[j].TotalSales
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Rank = i + 1
		out[i].ShareOfTotalPercent = SharePercent(out[i].TotalSales, total)
		out[i].AverageTicket = AverageTicket(out[i].TotalSales, out[i].TransactionCount)
		out[i].StatusLevel = BranchStatus(out[i].TotalSales, mean)
	}
	return out
}

// BestAndWorst returns the top ranked branch and the lowest seller.
func BestAndWorst(ranking []BranchAggregate) (best, worst *BranchAggregate) {
	if len(ranking) == 0 {
		return nil, nil
	}
	b := ranking[0]
	w := ranking[0]
	for _, row := range ranking[1:] {
		if row.TotalSales > b.TotalSales {
			b = row
		}
		if row.TotalSales < w.TotalSales {
			w = row
		}
	}
	return &b, &w
}

// SortVendors orders vendors by revenue, highest first, ties by id.
func SortVendors(vendors []VendorAggregate) []VendorAggregate {
	if vendors == nil {
		return nil
	}
	out := make([]VendorAggregate, len(vendors))
	copy(out, vendors)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalSales != out[j].TotalSales {
			return out[i].TotalSales > out[j].TotalSales
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SummariseTeam builds the team table for a branch's vendors.
func SummariseTeam(vendors []VendorAggregate) TeamSummary {
	sorted := SortVendors(vendors)
	summary := TeamSummary{Standings: make([]VendorStanding, 0, len(sorted))}

	var top float64
	for _, v := range sorted {
		summary.TotalSales += v.TotalSales
		summary.Operations += v.SalesCount
		if v.TotalSales > top {
			top = v.TotalSales
		}
	}
	summary.AverageTicket = AverageTicket(summary.TotalSales, summary.Operations)
	if len(sorted) > 0 {
		best := sorted[0]
		summary.BestVendor = &best
	}
	for _, v := range sorted {
		progress := 0.0
		if top > 0 {
			progress = v.TotalSales / top * 100
		}
		summary.Standings = append(summary.Standings, VendorStanding{
			Vendor:          v,
			AverageTicket:   AverageTicket(v.TotalSales, v.SalesCount),
			Tier:            Tier(v.SalesCount),
			ProgressPercent: progress,
		})
	}
	return summary
}

// DeriveCategories orders a branch's category breakdown by revenue, highest
// first with ties by name, and fills each row's share of the branch revenue.
func DeriveCategories(rows []CategorySales) []CategorySales {
	if rows == nil {
		return nil
	}
	out := make([]CategorySales, len(rows))
	copy(out, rows)
	var total float64
	for _, row := range out {
		total += row.Revenue
	}
	for i := range out {
		out[i].SharePercent = SharePercent(out[i].Revenue, total)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// FocusProduct derives the product view from a vendor detail.
func FocusProduct(detail VendorDetail, productID int64) (ProductFocus, bool) {
	line, ok := detail.Product(productID)
	if !ok {
		return ProductFocus{}, false
	}
	var vendorRevenue float64
	for _, p := range detail.TopProducts {
		vendorRevenue += p.TotalRevenue
	}
	return ProductFocus{
		ProductLine:          line,
		AverageTicket:        AverageTicket(line.TotalRevenue, line.TransactionCount),
		ShareOfVendorPercent: SharePercent(line.TotalRevenue, vendorRevenue),
	}, true
}

// EstimateSource names the code path used for a period sales estimate.
type EstimateSource string

const (
	// EstimateFiltered uses the literal total of an explicitly filtered range.
	EstimateFiltered EstimateSource = "filtered"
	// EstimateScaled scales the company trailing 30 day figure by the
	// branch participation.
	EstimateScaled EstimateSource = "scaled"
)

// PeriodEstimate is the estimated period sales for a focused branch.
type PeriodEstimate struct {
	Value  float64        `json:"value"`
	Source EstimateSource `json:"source"`
}

// EstimateBranchPeriodSales keeps both estimate paths separate: an explicit
// filter reports the branch's own total, otherwise the company's trailing 30
// day sales are apportioned by the branch's share of the ranking.
func EstimateBranchPeriodSales(branch BranchAggregate, companyTrailing30 float64, filtered bool) PeriodEstimate {
	if filtered {
		return PeriodEstimate{Value: branch.TotalSales, Source: EstimateFiltered}
	}
	return PeriodEstimate{
		Value:  companyTrailing30 * branch.ShareOfTotalPercent / 100,
		Source: EstimateScaled,
	}
}

func containsVendor(vendors []VendorAggregate, id int64) bool {
	for _, v := range vendors {
		if v.ID == id {
			return true
		}
	}
	return false
}
