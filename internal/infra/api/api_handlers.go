package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/infra/logging"
	"telegram-group-access/internal/usecase"
)

type checkoutRequest struct {
	TenantID        string `json:"tenant_id"`
	PlanID          string `json:"plan_id"`
	BuyerExternalID int64  `json:"buyer_external_id"`
	Gateway         string `json:"gateway"`
	BuyerContact    string `json:"buyer_contact,omitempty"`
	Reference       string `json:"reference,omitempty"`
}

type checkoutResponse struct {
	PaymentID    string          `json:"payment_id"`
	Reference    string          `json:"reference"`
	Status       string          `json:"status"`
	Presentation json.RawMessage `json:"presentation,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

type paymentResponse struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	PlanID               string     `json:"plan_id"`
	BuyerExternalID      int64      `json:"buyer_external_id"`
	Amount               string     `json:"amount"`
	Gateway              string     `json:"gateway"`
	Reference            string     `json:"reference"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:                   p.ID,
		TenantID:             p.TenantID,
		PlanID:               p.PlanID,
		BuyerExternalID:      p.BuyerExternalID,
		Amount:               p.Amount.StringFixed(2),
		Gateway:              string(p.Gateway),
		Reference:            p.ExternalReference,
		GatewayTransactionID: p.GatewayTxID(),
		Status:               string(p.Status),
		CreatedAt:            p.CreatedAt,
		CompletedAt:          p.CompletedAt,
	}
}

type tenantResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OwnerID          int64      `json:"owner_id"`
	ActivationStatus string     `json:"activation_status"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	OwnedGroups      []int64    `json:"owned_groups"`
	Credential       string     `json:"credential"`
}

func toTenantResponse(t *model.Tenant) tenantResponse {
	groups := t.OwnedGroups
	if groups == nil {
		groups = []int64{}
	}
	return tenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		OwnerID:          t.OwnerID,
		ActivationStatus: string(t.ActivationStatus),
		ActivatedAt:      t.ActivatedAt,
		OwnedGroups:      groups,
		Credential:       logging.Redact(t.Credential, false),
	}
}

type planResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	DurationDays int    `json:"duration_days"` // 0 = lifetime
	GroupID      int64  `json:"group_id"`
}

func toPlanResponse(p *model.Plan) planResponse {
	out := planResponse{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), GroupID: p.GroupID}
	if p.AccessDuration != nil {
		out.DurationDays = int(p.AccessDuration.Hours() / 24)
	}
	return out
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// apiStatus maps use case errors to HTTP statuses.
func apiStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnsupportedGateway):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantInactive), errors.Is(err, domain.ErrTenantSuspended),
		errors.Is(err, domain.ErrPlanInactive), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsTransientGatewayError(err):
		return http.StatusServiceUnavailable
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

const msgProviderUnavailable = "payment provider unavailable, try again later"

// fail answers with a client-safe message. Provider responses and internal
// errors only go to the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apiStatus(err)
	log := logging.With(r.Context(), s.log)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("route", routePattern(r)).Msg("request failed")
		msg = "internal error"
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		log.Warn().Err(err).Str("route", routePattern(r)).Int("status", status).Msg("payment provider call failed")
		msg = msgProviderUnavailable
	}
	writeTracedError(w, r, status, msg)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.TenantID == "" || req.PlanID == "" || req.BuyerExternalID == 0 || req.Gateway == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, plan_id, buyer_external_id and gateway are required")
		return
	}
	ctx := logging.WithTgID(logging.WithTenantID(r.Context(), req.TenantID), req.BuyerExternalID)
	defer logging.TraceDuration(logging.With(ctx, s.log), "Checkout")()
	res, err := s.deps.Checkout.Checkout(ctx, usecase.CheckoutRequest{
		TenantID:        req.TenantID,
		PlanID:          req.PlanID,
		BuyerExternalID: req.BuyerExternalID,
		Gateway:         model.Gateway(strings.ToLower(req.Gateway)),
		BuyerContact:    req.BuyerContact,
		Reference:       req.Reference,
	})
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		PaymentID:    res.PaymentID,
		Reference:    res.Reference,
		Status:       string(res.Status),
		Presentation: res.Presentation,
		ExpiresAt:    res.ExpiresAt,
	})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Reconcile.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// handleSimulateApproval pays a sandbox charge and then reconciles it the
// same way a buyer's "I've paid" does.
func (s *Server) handleSimulateApproval(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		writeError(w, http.StatusNotFound, "not available")
		return
	}
	p, err := s.deps.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if p.Gateway != model.GatewaySandbox || p.GatewayTxID() == "" {
		writeError(w, http.StatusBadRequest, "not a sandbox payment")
		return
	}
	if err := s.deps.Sandbox.Approve(p.GatewayTxID()); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err = s.deps.Reconcile.Refresh(r.Context(), p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logging.With(r.Context(), s.log).Info().Str("payment_id", p.ID).Str("by", subject(r)).Msg("sandbox payment approved")
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

type createTenantRequest struct {
	Credential     string `json:"credential"`
	OwnerID        int64  `json:"owner_id"`
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcome_message"`
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	t, err := s.deps.Tenants.Onboard(r.Context(), req.Credential, req.OwnerID, req.Name, req.WelcomeMessage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(t))
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tenants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

func (s *Server) handleIssueCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.deps.Activation.Issue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"code": code.Code, "expires_at": code.ExpiresAt})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tenants.Suspend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logging.With(r.Context(), s.log).Info().Str("tenant_id", t.ID).Str("by", subject(r)).Msg("tenant suspended via api")
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Tenants.ListPlans(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type createPlanRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	GroupID      int64           `json:"group_id"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	p, err := s.deps.Tenants.CreatePlan(r.Context(), chi.URLParam(r, "id"), req.Name, req.Price, req.DurationDays, req.GroupID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanResponse(p))
}

func subject(r *http.Request) string {
	if c, ok := r.Context().Value(claimsKey{}).(*Claims); ok {
		return c.Subject
	}
	return ""
}
