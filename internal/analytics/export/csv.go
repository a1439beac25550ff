package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

// WriteRankingCSV serialises the derived branch ranking.
func WriteRankingCSV(w io.Writer, period string, rows []drilldown.BranchAggregate) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Period", period}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Rank", "Branch ID", "Branch", "Location", "Total Sales", "Transactions", "Average Ticket", "Share %", "Status"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.Itoa(row.Rank),
			formatInt(row.ID),
			row.Name,
			row.Location,
			formatFloat(row.TotalSales),
			formatInt(row.TransactionCount),
			formatFloat(row.AverageTicket),
			formatFloat(row.ShareOfTotalPercent),
			string(row.StatusLevel),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTeamCSV emits the team standings of one branch.
func WriteTeamCSV(w io.Writer, period string, branch string, team drilldown.TeamSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := [][]string{
		{"Period", period},
		{"Branch", branch},
		{"Team Sales", formatFloat(team.TotalSales)},
		{"Operations", formatInt(team.Operations)},
		{"Average Ticket", formatFloat(team.AverageTicket)},
		{"Vendor ID", "Vendor", "Sales", "Total Sales", "Average Ticket", "Tier", "Progress %"},
	}
	for _, record := range header {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for _, s := range team.Standings {
		if err := writer.Write([]string{
			formatInt(s.Vendor.ID),
			s.Vendor.FullName(),
			formatInt(s.Vendor.SalesCount),
			formatFloat(s.Vendor.TotalSales),
			formatFloat(s.AverageTicket),
			string(s.Tier),
			formatFloat(s.ProgressPercent),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCategoriesCSV emits the category breakdown of one branch.
func WriteCategoriesCSV(w io.Writer, period string, branch string, rows []drilldown.CategorySales) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := [][]string{
		{"Period", period},
		{"Branch", branch},
		{"Category", "Sales", "Units Sold", "Revenue", "Share %"},
	}
	for _, record := range header {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Category,
			formatInt(row.SalesCount),
			formatInt(row.UnitsSold),
			formatFloat(row.Revenue),
			formatFloat(row.SharePercent),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrendCSV emits the company sales trend, one bucket per row.
func WriteTrendCSV(w io.Writer, overview analytics.Overview) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := [][]string{
		{"Granularity", string(overview.Granularity)},
		{"Days", strconv.Itoa(overview.Days)},
		{"Date", "Total Sales", "Transactions", "Average Ticket"},
	}
	for _, record := range header {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for _, p := range overview.Trend {
		if err := writer.Write([]string{
			p.Date.Format("2006-01-02"),
			formatFloat(p.TotalSales),
			formatInt(p.Transactions),
			formatFloat(p.AverageTicket),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
