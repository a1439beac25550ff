package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

// number accepts JSON numbers as well as numeric strings; aggregate columns
// arrive as strings when the backend serialises decimals.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		// ParseFloat also accepts "NaN" and "Inf".
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite number %q", ErrMalformed, s)
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

func (n number) float() float64 { return float64(n) }

func (n number) int() int64 { return int64(n) }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
	"2006-01",
}

func parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("%w: timestamp %q", ErrMalformed, s)
}

type branchRankingDTO struct {
	ID               number `json:"id"`
	Name             string `json:"nombre"`
	Location         string `json:"ubicacion"`
	TotalSales       number `json:"ventasTotales"`
	TransactionCount number `json:"numeroCompras"`
}

// toAggregate keeps only the raw totals; rank, share, ticket and status are
// recomputed locally.
func (d branchRankingDTO) toAggregate() drilldown.BranchAggregate {
	return drilldown.BranchAggregate{
		ID:               d.ID.int(),
		Name:             d.Name,
		Location:         d.Location,
		TotalSales:       d.TotalSales.float(),
		TransactionCount: d.TransactionCount.int(),
	}
}

type vendorDTO struct {
	ID         number `json:"id"`
	Name       string `json:"nombre"`
	LastName   string `json:"apellido"`
	NationalID string `json:"dni"`
	BranchID   number `json:"sucursalId"`
	SalesCount number `json:"numeroVentas"`
	TotalSales number `json:"ventasTotales"`
}

func (d vendorDTO) toAggregate() drilldown.VendorAggregate {
	return drilldown.VendorAggregate{
		ID:         d.ID.int(),
		Name:       d.Name,
		LastName:   d.LastName,
		NationalID: d.NationalID,
		BranchID:   d.BranchID.int(),
		SalesCount: d.SalesCount.int(),
		TotalSales: d.TotalSales.float(),
	}
}

type vendorStatsDTO struct {
	SalesCount    number  `json:"numeroVentas"`
	TotalSales    number  `json:"ventasTotales"`
	AverageTicket number  `json:"ticketPromedio"`
	UnitsSold     number  `json:"unidadesVendidas"`
	ProductsSold  number  `json:"productosVendidos"`
	BranchShare   number  `json:"participacionSucursal"`
	FirstSale     *string `json:"primeraVenta"`
	LastSale      *string `json:"ultimaVenta"`
}

type productDTO struct {
	ID               number `json:"id"`
	Name             string `json:"nombre"`
	Category         string `json:"categoria"`
	Description      string `json:"descripcion"`
	UnitsSold        number `json:"unidadesVendidas"`
	TotalRevenue     number `json:"ingresoTotal"`
	TransactionCount number `json:"numeroTransacciones"`
}

type vendorDetailDTO struct {
	Vendor   vendorDTO      `json:"vendedor"`
	Stats    vendorStatsDTO `json:"stats"`
	Products []productDTO   `json:"productos"`
}

func (d vendorDetailDTO) toDetail() (drilldown.VendorDetail, error) {
	first, err := parseTimestamp(d.Stats.FirstSale)
	if err != nil {
		return drilldown.VendorDetail{}, err
	}
	last, err := parseTimestamp(d.Stats.LastSale)
	if err != nil {
		return drilldown.VendorDetail{}, err
	}
	vendor := d.Vendor.toAggregate()
	vendor.SalesCount = d.Stats.SalesCount.int()
	vendor.TotalSales = d.Stats.TotalSales.float()

	products := make([]drilldown.ProductLine, 0, len(d.Products))
	for _, p := range d.Products {
		products = append(products, drilldown.ProductLine{
			ID:               p.ID.int(),
			Name:             p.Name,
			Category:         p.Category,
			Description:      p.Description,
			UnitsSold:        p.UnitsSold.int(),
			TotalRevenue:     p.TotalRevenue.float(),
			TransactionCount: p.TransactionCount.int(),
		})
	}
	return drilldown.VendorDetail{
		VendorAggregate:    vendor,
		AverageTicket:      d.Stats.AverageTicket.float(),
		UnitsSold:          d.Stats.UnitsSold.int(),
		ProductsSoldCount:  d.Stats.ProductsSold.int(),
		BranchSharePercent: d.Stats.BranchShare.float(),
		FirstSaleDate:      first,
		LastSaleDate:       last,
		TopProducts:        products,
	}, nil
}

type categoryDTO struct {
	Category   string `json:"categoria"`
	SalesCount number `json:"numeroVentas"`
	UnitsSold  number `json:"unidadesVendidas"`
	Revenue    number `json:"ingresoTotal"`
}

func (d categoryDTO) toCategory() drilldown.CategorySales {
	return drilldown.CategorySales{
		Category:   d.Category,
		SalesCount: d.SalesCount.int(),
		UnitsSold:  d.UnitsSold.int(),
		Revenue:    d.Revenue.float(),
	}
}

type trendPointDTO struct {
	Date          string `json:"fecha"`
	TotalSales    number `json:"totalVentas"`
	Transactions  number `json:"numeroTransacciones"`
	AverageTicket number `json:"ticketPromedio"`
}

func (d trendPointDTO) toPoint() (analytics.TrendPoint, error) {
	ts, err := parseTimestamp(&d.Date)
	if err != nil {
		return analytics.TrendPoint{}, err
	}
	if ts == nil {
		return analytics.TrendPoint{}, fmt.Errorf("%w: trend point without date", ErrMalformed)
	}
	return analytics.TrendPoint{
		Date:          *ts,
		TotalSales:    d.TotalSales.float(),
		Transactions:  d.Transactions.int(),
		AverageTicket: d.AverageTicket.float(),
	}, nil
}

type topProductDTO struct {
	ID           number `json:"id"`
	Name         string `json:"nombre"`
	Category     string `json:"categoria"`
	UnitPrice    number `json:"precioUnitario"`
	UnitsSold    number `json:"unidadesVendidas"`
	Revenue      number `json:"ingresoTotal"`
	Transactions number `json:"numeroTransacciones"`
}

func (d topProductDTO) toProduct() analytics.TopProduct {
	return analytics.TopProduct{
		ID:           d.ID.int(),
		Name:         d.Name,
		Category:     d.Category,
		UnitPrice:    d.UnitPrice.float(),
		UnitsSold:    d.UnitsSold.int(),
		Revenue:      d.Revenue.float(),
		Transactions: d.Transactions.int(),
	}
}

type generalKPIsDTO struct {
	TotalSales        number `json:"ventasTotales"`
	MonthlyAverage    number `json:"promedioMensual"`
	CurrentMonth      number `json:"ventasMesActual"`
	PreviousMonth     number `json:"ventasMesAnterior"`
	MonthOverMonth    number `json:"comparativa"`
	TotalTransactions number `json:"totalTransacciones"`
	TotalBranches     number `json:"totalSucursales"`
	TotalProducts     number `json:"totalProductos"`
}

func (d generalKPIsDTO) toKPIs() analytics.GeneralKPIs {
	return analytics.GeneralKPIs{
		TotalSales:            d.TotalSales.float(),
		DailyAverage:          d.MonthlyAverage.float(),
		CurrentMonthSales:     d.CurrentMonth.float(),
		PreviousMonthSales:    d.PreviousMonth.float(),
		MonthOverMonthPercent: d.MonthOverMonth.float(),
		TotalTransactions:     d.TotalTransactions.int(),
		TotalBranches:         d.TotalBranches.int(),
		TotalProducts:         d.TotalProducts.int(),
	}
}
