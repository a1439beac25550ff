package views

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

// DefaultLocale matches the currency the backend reports in.
const DefaultLocale = "es-AR"

// Formatter renders amounts with the grouping and decimal separators of a
// locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter parses a BCP 47 tag such as "es-AR".
func NewFormatter(locale string) (*Formatter, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("views: locale %q: %w", locale, err)
	}
	return &Formatter{printer: message.NewPrinter(tag)}, nil
}

// Integer groups v with the locale separator.
func (f *Formatter) Integer(v int64) string {
	return f.printer.Sprintf("%d", v)
}

// Currency rounds to whole pesos.
func (f *Formatter) Currency(v float64) string {
	return "$ " + f.Integer(int64(math.Round(v)))
}

// Percent renders one decimal.
func (f *Formatter) Percent(v float64) string {
	return f.printer.Sprintf("%.1f", v) + " %"
}

// Card is one KPI tile of the dashboard.
type Card struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value string  `json:"value"`
	Raw   float64 `json:"raw"`
	Hint  string  `json:"hint,omitempty"`
}

// BuildCards picks the tiles for the depth of snap. Levels without data
// produce no tiles.
func (f *Formatter) BuildCards(snap drilldown.Snapshot, kpis *analytics.GeneralKPIs, estimate *drilldown.PeriodEstimate) []Card {
	switch snap.Depth() {
	case drilldown.DepthProduct:
		if snap.Product != nil {
			return f.productCards(*snap.Product)
		}
	case drilldown.DepthVendor:
		if snap.VendorDetail != nil {
			return f.vendorCards(*snap.VendorDetail)
		}
	case drilldown.DepthBranch:
		if branch, ok := snap.Branch(); ok {
			return f.branchCards(branch, snap.Team, snap.Categories, estimate)
		}
	default:
		return f.rootCards(snap.Branches, kpis)
	}
	return []Card{}
}

func (f *Formatter) rootCards(ranking []drilldown.BranchAggregate, kpis *analytics.GeneralKPIs) []Card {
	cards := []Card{}
	if kpis != nil {
		cards = append(cards,
			f.money("total_sales", "Ventas totales", kpis.TotalSales, ""),
			f.money("estimated_monthly", "Promedio mensual estimado", kpis.EstimatedMonthlySales(), "Promedio diario × 30"),
			f.money("current_month", "Ventas del mes", kpis.CurrentMonthSales, "Mes anterior: "+f.Currency(kpis.PreviousMonthSales)),
			f.percent("month_over_month", "Comparativa mensual", kpis.MonthOverMonthPercent, ""),
			f.count("transactions", "Transacciones", kpis.TotalTransactions, ""),
			f.count("branches", "Sucursales", kpis.TotalBranches, ""),
			f.count("products", "Productos", kpis.TotalProducts, ""),
		)
	}
	best, worst := drilldown.BestAndWorst(ranking)
	if best != nil {
		cards = append(cards, f.money("best_branch", "Mejor sucursal", best.TotalSales, best.Name))
	}
	if worst != nil && len(ranking) > 1 {
		cards = append(cards, f.money("worst_branch", "Menores ventas", worst.TotalSales, worst.Name))
	}
	return cards
}

func (f *Formatter) branchCards(branch drilldown.BranchAggregate, team *drilldown.TeamSummary, categories []drilldown.CategorySales, estimate *drilldown.PeriodEstimate) []Card {
	cards := []Card{
		f.money("branch_sales", "Ventas de la sucursal", branch.TotalSales, branch.Name),
		f.count("branch_transactions", "Compras", branch.TransactionCount, ""),
		f.money("branch_ticket", "Ticket promedio", branch.AverageTicket, ""),
		f.percent("branch_share", "Participación", branch.ShareOfTotalPercent, fmt.Sprintf("Puesto #%d", branch.Rank)),
	}
	if estimate != nil {
		hint := "Calculado sobre el período filtrado"
		if estimate.Source == drilldown.EstimateScaled {
			hint = "Proyección de los últimos 30 días"
		}
		cards = append(cards, f.money("branch_estimate", "Ventas estimadas del período", estimate.Value, hint))
	}
	if team != nil {
		cards = append(cards,
			f.money("team_sales", "Ventas del equipo", team.TotalSales, ""),
			f.count("team_operations", "Operaciones del equipo", team.Operations, ""),
			f.money("team_ticket", "Ticket promedio del equipo", team.AverageTicket, ""),
		)
		if team.BestVendor != nil {
			cards = append(cards, f.money("best_vendor", "Mejor vendedor", team.BestVendor.TotalSales, team.BestVendor.FullName()))
		}
	}
	// categories arrive sorted by revenue
	if len(categories) > 0 {
		top := categories[0]
		cards = append(cards, f.percent("top_category", "Categoría principal", top.SharePercent, top.Category))
	}
	return cards
}

func (f *Formatter) vendorCards(d drilldown.VendorDetail) []Card {
	return []Card{
		f.money("vendor_sales", "Ventas del vendedor", d.TotalSales, d.FullName()),
		f.count("vendor_operations", "Ventas realizadas", d.SalesCount, string(drilldown.Tier(d.SalesCount))),
		f.money("vendor_ticket", "Ticket promedio", d.AverageTicket, ""),
		f.count("vendor_units", "Unidades vendidas", d.UnitsSold, ""),
		f.count("vendor_products", "Productos distintos", d.ProductsSoldCount, ""),
		f.percent("vendor_branch_share", "Participación en la sucursal", d.BranchSharePercent, ""),
	}
}

func (f *Formatter) productCards(p drilldown.ProductFocus) []Card {
	return []Card{
		f.money("product_revenue", "Ingresos del producto", p.TotalRevenue, p.Name),
		f.count("product_units", "Unidades vendidas", p.UnitsSold, p.Category),
		f.count("product_transactions", "Transacciones", p.TransactionCount, ""),
		f.money("product_ticket", "Ticket promedio", p.AverageTicket, ""),
		f.percent("product_share", "Participación en el vendedor", p.ShareOfVendorPercent, ""),
	}
}

func (f *Formatter) money(key, label string, v float64, hint string) Card {
	return Card{Key: key, Label: label, Value: f.Currency(v), Raw: v, Hint: hint}
}

func (f *Formatter) count(key, label string, v int64, hint string) Card {
	return Card{Key: key, Label: label, Value: f.Integer(v), Raw: float64(v), Hint: hint}
}

func (f *Formatter) percent(key, label string, v float64, hint string) Card {
	return Card{Key: key, Label: label, Value: f.Percent(v), Raw: v, Hint: hint}
}
