package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/infra/logging"
	"telegram-group-access/internal/usecase"
)

// UpdateHandler is satisfied by telegram.UpdateHandler.
type UpdateHandler interface {
	Handle(ctx context.Context, t *model.Tenant, u tgbotapi.Update) error
}

// Approver marks a sandbox charge as paid. Only wired in dev mode.
type Approver interface {
	Approve(providerPaymentID string) error
}

// HealthChecker reports whether a dependency answers.
type HealthChecker func(ctx context.Context) error

type Deps struct {
	Tenants    usecase.TenantUseCase
	Activation usecase.ActivationUseCase
	Checkout   usecase.CheckoutUseCase
	Ledger     usecase.LedgerUseCase
	Reconcile  usecase.ReconcileUseCase
	Updates    UpdateHandler
	Auth       *AuthManager
	Sandbox    Approver // nil outside dev mode
	Health     map[string]HealthChecker
}

const webhookMaxBody = 64 << 10

type Server struct {
	deps    Deps
	timeout time.Duration
	log     *zerolog.Logger
}

func NewServer(deps Deps, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTP").Logger()
	return &Server{deps: deps, timeout: requestTimeout, log: &l}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// provider notifications are small and usually arrive through a proxy
	r.Method(http.MethodPost, "/webhooks/{gateway}/{tenantID}", Chain(http.HandlerFunc(s.handleWebhook),
		middleware.RealIP, Timeout(s.timeout), MaxBody(webhookMaxBody)))

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.timeout), MaxBody(1<<20))

		r.Post("/telegram/{credential}", s.handleTelegram)

		r.Route("/api/v1", func(r chi.Router) {
			r.With(s.deps.Auth.Require(RoleService, RoleAdmin)).Post("/checkout", s.handleCheckout)

			r.Group(func(r chi.Router) {
				r.Use(s.deps.Auth.Require(RoleAdmin))
				r.Get("/payments/{id}", s.handleGetPayment)
				r.Post("/payments/{id}/refresh", s.handleRefresh)
				r.Post("/payments/{id}/simulate-approval", s.handleSimulateApproval)

				r.Post("/admin/tenants", s.handleCreateTenant)
				r.Get("/admin/tenants/{id}", s.handleGetTenant)
				r.Post("/admin/tenants/{id}/activation-codes", s.handleIssueCode)
				r.Post("/admin/tenants/{id}/suspend", s.handleSuspend)
				r.Get("/admin/tenants/{id}/plans", s.handleListPlans)
				r.Post("/admin/tenants/{id}/plans", s.handleCreatePlan)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTracedError adds the request's trace id so callers can quote it.
func writeTracedError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := map[string]string{"error": msg}
	if tid := logging.TraceID(r.Context()); tid != "" {
		body["trace_id"] = tid
	}
	writeJSON(w, status, body)
}
