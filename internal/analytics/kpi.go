package analytics

import "context"

// DaysPerMonth scales the daily average into the estimated monthly figure.
const DaysPerMonth = 30

// GeneralKPIs is the company-wide KPI block shown above the ranking.
type GeneralKPIs struct {
	TotalSales            float64 `json:"total_sales"`
	DailyAverage          float64 `json:"daily_average"`
	CurrentMonthSales     float64 `json:"current_month_sales"`
	PreviousMonthSales    float64 `json:"previous_month_sales"`
	MonthOverMonthPercent float64 `json:"month_over_month_percent"`
	TotalTransactions     int64   `json:"total_transactions"`
	TotalBranches         int64   `json:"total_branches"`
	TotalProducts         int64   `json:"total_products"`
}

// EstimatedMonthlySales projects the daily average over a month.
func (k GeneralKPIs) EstimatedMonthlySales() float64 {
	return k.DailyAverage * DaysPerMonth
}

// KPISource loads the general KPI block.
type KPISource interface {
	FetchGeneralKPIs(ctx context.Context) (GeneralKPIs, error)
}
