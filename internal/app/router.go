package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerstack/ledgerstack/internal/auth"
	"github.com/ledgerstack/ledgerstack/internal/billing"
	"github.com/ledgerstack/ledgerstack/internal/dashboard"
	"github.com/ledgerstack/ledgerstack/internal/inventory"
	"github.com/ledgerstack/ledgerstack/internal/masterdata"
	"github.com/ledgerstack/ledgerstack/internal/observability"
	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
	"github.com/ledgerstack/ledgerstack/internal/shared"
	"github.com/ledgerstack/ledgerstack/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	BillingHandler    *billing.Handler
	InventoryHandler  *inventory.Handler
	MasterDataHandler *masterdata.Handler
	DashboardHandler  *dashboard.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// CSRF bootstrap for API clients: GET the token, send it back in
	// X-CSRF-Token on mutating requests.
	r.Get("/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(RequireAccount)
		r.Route("/bills", params.BillingHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		params.MasterDataHandler.MountRoutes(r)
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// RequireAccount rejects requests without an authenticated session and stores
// the account id in the request context for downstream handlers.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		accountID := shared.AccountFromSession(sess)
		if accountID == 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithAccount(r.Context(), accountID)))
	})
}
