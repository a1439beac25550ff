package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Granularity is the bucket size of the sales trend.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

const (
	// DefaultTrendDays is the trailing window of the dashboard trend.
	DefaultTrendDays = 30
	// DefaultTopProducts is how many best sellers a view lists.
	DefaultTopProducts = 8
	// MaxTrendDays bounds the trend window the backend is asked for.
	MaxTrendDays = 366
)

// ParseGranularity accepts day, week or month; empty means day.
func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	default:
		return "", fmt.Errorf("analytics: unknown granularity %q", raw)
	}
}

// TrendPoint is one bucket of the company sales trend.
type TrendPoint struct {
	Date          time.Time `json:"date"`
	TotalSales    float64   `json:"total_sales"`
	Transactions  int64     `json:"transactions"`
	AverageTicket float64   `json:"average_ticket"`
}

// TopProduct is one row of the company best sellers.
type TopProduct struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	UnitPrice    float64 `json:"unit_price"`
	UnitsSold    int64   `json:"units_sold"`
	Revenue      float64 `json:"revenue"`
	Transactions int64   `json:"transactions"`
}

// OverviewSource loads the company-wide trend and best sellers.
type OverviewSource interface {
	FetchSalesTrend(ctx context.Context, granularity Granularity, days int) ([]TrendPoint, error)
	FetchTopProducts(ctx context.Context, limit int) ([]TopProduct, error)
}

// CompanySource is everything a view shows above the drill-down.
type CompanySource interface {
	KPISource
	OverviewSource
}

// Overview is the trend and best sellers block of a view.
type Overview struct {
	Granularity Granularity  `json:"granularity"`
	Days        int          `json:"days"`
	Trend       []TrendPoint `json:"trend"`
	TopProducts []TopProduct `json:"top_products"`
}

// TrendTotal sums the trend buckets.
func (o Overview) TrendTotal() float64 {
	var total float64
	for _, p := range o.Trend {
		total += p.TotalSales
	}
	return total
}
