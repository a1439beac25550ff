package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdash/salesdash/internal/analytics"
	"github.com/salesdash/salesdash/internal/drilldown"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/api", time.Second)
	require.NoError(t, err)
	return client
}

func januaryRange() drilldown.DateRange {
	return drilldown.DateRange{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchBranchRanking(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/sucursales/ranking", r.URL.Path)
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("fechaInicio"))
		assert.Equal(t, "2025-01-31", r.URL.Query().Get("fechaFin"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":[
			{"id":1,"nombre":"Centro","ubicacion":"Córdoba","ventasTotales":"1500.50","numeroCompras":"3","ticketPromedio":500.17,"ranking":1,"porcentajeDelTotal":60,"estado":"excelente","color":"green"},
			{"id":"2","nombre":"Norte","ubicacion":"Salta","ventasTotales":1000,"numeroCompras":0}
		]}`))
	})

	rows, err := client.FetchBranchRanking(context.Background(), januaryRange())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "Centro", rows[0].Name)
	assert.Equal(t, "Córdoba", rows[0].Location)
	assert.InDelta(t, 1500.50, rows[0].TotalSales, 1e-9)
	assert.Equal(t, int64(3), rows[0].TransactionCount)
	// Server-side derivations are ignored.
	assert.Zero(t, rows[0].Rank)
	assert.Empty(t, rows[0].StatusLevel)
	assert.Equal(t, int64(2), rows[1].ID)
}

func TestFetchVendorsForBranch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vendedores/sucursal/7", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":71,"nombre":"Ana","apellido":"Paz","dni":"30111222","numeroVentas":12,"ventasTotales":"900"}
		]}`))
	})

	vendors, err := client.FetchVendorsForBranch(context.Background(), 7, januaryRange())
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "Ana Paz", vendors[0].FullName())
	assert.Equal(t, "30111222", vendors[0].NationalID)
	assert.Equal(t, int64(7), vendors[0].BranchID)
	assert.Equal(t, int64(12), vendors[0].SalesCount)
	assert.InDelta(t, 900.0, vendors[0].TotalSales, 1e-9)
}

func TestFetchVendorDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vendedores/71/detalle", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{
			"vendedor":{"id":71,"nombre":"Ana","apellido":"Paz","dni":"30111222","sucursalId":7},
			"stats":{"numeroVentas":4,"ventasTotales":"400","ticketPromedio":"100","unidadesVendidas":9,"productosVendidos":2,"participacionSucursal":"44.4","primeraVenta":"2025-01-03T10:00:00.000Z","ultimaVenta":null},
			"productos":[
				{"id":100,"nombre":"Yerba","categoria":"Almacén","descripcion":"1kg","unidadesVendidas":6,"ingresoTotal":"300","numeroTransacciones":3},
				{"id":200,"nombre":"Mate","categoria":"Bazar","unidadesVendidas":3,"ingresoTotal":100,"numeroTransacciones":1}
			]}}`))
	})

	detail, err := client.FetchVendorDetail(context.Background(), 71, januaryRange())
	require.NoError(t, err)
	assert.Equal(t, int64(71), detail.ID)
	assert.Equal(t, int64(7), detail.BranchID)
	assert.Equal(t, int64(4), detail.SalesCount)
	assert.InDelta(t, 400.0, detail.TotalSales, 1e-9)
	assert.InDelta(t, 44.4, detail.BranchSharePercent, 1e-9)
	assert.Equal(t, int64(9), detail.UnitsSold)
	require.NotNil(t, detail.FirstSaleDate)
	assert.Equal(t, 3, detail.FirstSaleDate.Day())
	assert.Nil(t, detail.LastSaleDate)
	require.Len(t, detail.TopProducts, 2)
	assert.Equal(t, "1kg", detail.TopProducts[0].Description)
	assert.Equal(t, int64(3), detail.TopProducts[0].TransactionCount)
}

func TestFetchGeneralKPIs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/kpis", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"success":true,"data":{"ventasTotales":"125000","promedioMensual":410.5,"ventasMesActual":9000,"ventasMesAnterior":8000,"comparativa":12.5,"totalTransacciones":320,"totalSucursales":"5","totalProductos":48}}`))
	})

	kpis, err := client.FetchGeneralKPIs(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 125000.0, kpis.TotalSales, 1e-9)
	assert.InDelta(t, 410.5, kpis.DailyAverage, 1e-9)
	assert.InDelta(t, 12.5, kpis.MonthOverMonthPercent, 1e-9)
	assert.Equal(t, int64(5), kpis.TotalBranches)
	assert.Equal(t, int64(48), kpis.TotalProducts)
}

func TestFetchBranchCategories(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/categorias", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("sucursalId"))
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("fechaInicio"))
		assert.Equal(t, "2025-01-31", r.URL.Query().Get("fechaFin"))
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"categoria":"Almacén","numeroVentas":"14","unidadesVendidas":30,"ingresoTotal":"3200.5"},
			{"categoria":"Bazar","numeroVentas":2,"unidadesVendidas":"4","ingresoTotal":800}
		]}`))
	})

	rows, err := client.FetchBranchCategories(context.Background(), 7, januaryRange())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Almacén", rows[0].Category)
	assert.Equal(t, int64(14), rows[0].SalesCount)
	assert.Equal(t, int64(30), rows[0].UnitsSold)
	assert.InDelta(t, 3200.5, rows[0].Revenue, 1e-9)
	assert.Zero(t, rows[0].SharePercent, "shares are derived locally")
	assert.Equal(t, int64(4), rows[1].UnitsSold)
}

func TestFetchSalesTrend(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/ventas/periodo", r.URL.Path)
		assert.Equal(t, "semana", r.URL.Query().Get("periodo"))
		assert.Equal(t, "90", r.URL.Query().Get("dias"))
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"fecha":"2025-01-06","totalVentas":"1200","numeroTransacciones":"6","ticketPromedio":"200"},
			{"fecha":"2025-01-13T00:00:00.000Z","totalVentas":900,"numeroTransacciones":3,"ticketPromedio":300}
		]}`))
	})

	points, err := client.FetchSalesTrend(context.Background(), analytics.GranularityWeek, 90)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 6, points[0].Date.Day())
	assert.InDelta(t, 1200.0, points[0].TotalSales, 1e-9)
	assert.Equal(t, int64(6), points[0].Transactions)
	assert.Equal(t, 13, points[1].Date.Day())

	_, err = client.FetchSalesTrend(context.Background(), analytics.Granularity("year"), 90)
	assert.Error(t, err)
}

func TestFetchSalesTrendRejectsUndatedPoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"fecha":"","totalVentas":1}]}`))
	})
	_, err := client.FetchSalesTrend(context.Background(), analytics.GranularityDay, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFetchTopProducts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/productos/top", r.URL.Path)
		assert.Equal(t, "8", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":100,"nombre":"Yerba","categoria":"Almacén","precioUnitario":"100","unidadesVendidas":30,"ingresoTotal":"3000","numeroTransacciones":9}
		]}`))
	})

	products, err := client.FetchTopProducts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Yerba", products[0].Name)
	assert.InDelta(t, 100.0, products[0].UnitPrice, 1e-9)
	assert.InDelta(t, 3000.0, products[0].Revenue, 1e-9)
	assert.Equal(t, int64(9), products[0].Transactions)
}

func TestNonFiniteAmountsAreMalformed(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "-Infinity", "+inf"} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"nombre":"Centro","ventasTotales":"` + raw + `","numeroCompras":3}]}`))
			})
			_, err := client.FetchBranchRanking(context.Background(), januaryRange())
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestErrorTranslation(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "status",
			status: http.StatusInternalServerError,
			body:   `{"success":false,"message":"db down"}`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
				assert.Equal(t, "db down", statusErr.Message)
			},
		},
		{
			name:   "status without envelope",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Empty(t, statusErr.Message)
			},
		},
		{
			name:   "rejected",
			status: http.StatusOK,
			body:   `{"success":false,"message":"rango inválido"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRejected)
				assert.Contains(t, err.Error(), "rango inválido")
			},
		},
		{
			name:   "malformed",
			status: http.StatusOK,
			body:   `{"success":true,"data":[{"id":"uno"}]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMalformed)
			},
		},
		{
			name:   "missing data",
			status: http.StatusOK,
			body:   `{"success":true,"data":null}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMalformed)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.FetchBranchRanking(context.Background(), januaryRange())
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestUnavailableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, time.Second)
	require.NoError(t, err)
	_, err = client.FetchGeneralKPIs(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}

func TestCancelledContext(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchVendorsForBranch(ctx, 1, januaryRange())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("ftp://backend", 0)
	assert.Error(t, err)
	_, err = NewClient("http://backend:3001/api/", 0)
	assert.NoError(t, err)
}
