package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/posting"
	"github.com/meridian-erp/meridian/internal/replenish"
	"github.com/meridian-erp/meridian/internal/stock"
	"github.com/meridian-erp/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AccountsHandler  *accounts.Handler
	LedgerHandler    *ledger.Handler
	StockHandler     *stock.Handler
	PostingHandler   *posting.Handler
	ReplenishHandler *replenish.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/accounts", params.AccountsHandler.MountRoutes)
		api.Route("/ledger", params.LedgerHandler.MountRoutes)
		api.Route("/stock/reservations", params.StockHandler.MountReservationRoutes)
		api.Route("/products", params.StockHandler.MountProductRoutes)
		api.Route("/sales", params.PostingHandler.MountSaleRoutes)
		api.Route("/restocks", params.PostingHandler.MountRestockRoutes)
		api.Route("/replenishment", params.ReplenishHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
