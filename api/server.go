/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. RequestID:  unique id per request, echoed in logs
  2. Logger:     zap request line
  3. Recoverer:  panic recovery (500 instead of crash)
  4. CORS:       cross-origin requests for the frontend
  5. Actor:      X-Company-ID / X-User-ID / X-Role on /api

ROUTE GROUPS:
  /api/leaves/*         Leave request lifecycle
  /api/employees/*      Balances, ledger history and maintenance
  /api/policies/*       Custom policies
  /api/carry-forward/*  Year-end rollover
  /api/encashment/*     Leave encashment
  /healthz              Liveness

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			HeaderCompanyID, HeaderUserID, HeaderRole, HeaderEmployeeID, "Idempotency-Key"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)
		r.Use(h.resolveActor)

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.CreateLeave)
			r.Get("/", h.ListLeaves)
			r.Get("/{id}", h.GetLeave)
			r.Put("/{id}", h.UpdateLeave)
			r.Delete("/{id}", h.DeleteLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
		})

		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/balances", h.GetBalances)
			r.Get("/ledger", h.GetLedger)
			r.Get("/ledger/verify", h.VerifyLedger)
			r.Post("/ledger/reconcile", h.ReconcileLedger)
			r.Post("/adjustments", h.CreateAdjustment)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Put("/{id}", h.UpdatePolicy)
			r.Delete("/{id}", h.DeletePolicy)
		})

		r.Route("/carry-forward", func(r chi.Router) {
			r.Post("/preview", h.PreviewCarryForward)
			r.Post("/execute", h.ExecuteCarryForward)
			r.Post("/company/execute", h.ExecuteCompanyCarryForward)
		})

		r.Route("/encashment", func(r chi.Router) {
			r.Post("/preview", h.PreviewEncashment)
			r.Post("/execute", h.ExecuteEncashment)
			r.Post("/company/preview", h.PreviewCompanyEncashment)
			r.Post("/company/execute", h.ExecuteCompanyEncashment)
		})
	})

	return r
}
