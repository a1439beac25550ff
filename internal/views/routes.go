package views

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the view endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/presets", h.handlePresets)
	r.Post("/views", h.handleCreate)
	r.Route("/views/{viewID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Put("/range", h.handleRange)
		r.Put("/branch", h.handleBranch)
		r.Put("/vendor", h.handleVendor)
		r.Put("/product", h.handleProduct)
		r.Get("/ranking.svg", h.handleRankingChart)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/refresh", h.handleRefresh)
			gr.Get("/export.csv", h.handleCSV)
		})
	})
}

// rateLimitKey scopes refreshes and exports per client and view.
func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key + ":view:" + chi.URLParam(r, "viewID"), nil
}
