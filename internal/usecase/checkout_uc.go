// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutRequest struct {
	TenantID        string
	PlanID          string
	BuyerExternalID int64
	Gateway         model.Gateway
	BuyerContact    string
	Reference       string // optional; generated when empty
}

type CheckoutResult struct {
	PaymentID    string
	Reference    string
	Status       model.PaymentStatus
	Presentation json.RawMessage
	ExpiresAt    *time.Time
}

// CheckoutUseCase starts a purchase: ledger entry first, provider call second.
type CheckoutUseCase interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutUC struct {
	tenants  repository.TenantRepository
	plans    repository.PlanRepository
	ledger   LedgerUseCase
	gateways adapter.GatewayRegistry
	baseURL  string
	offerTTL time.Duration
	log      *zerolog.Logger
}

// NewCheckoutUseCase builds the checkout flow. baseURL is the public address
// gateways post webhooks to.
func NewCheckoutUseCase(
	tenants repository.TenantRepository,
	plans repository.PlanRepository,
	ledger LedgerUseCase,
	gateways adapter.GatewayRegistry,
	baseURL string,
	offerTTL time.Duration,
	logger *zerolog.Logger,
) *checkoutUC {
	if offerTTL <= 0 {
		offerTTL = 30 * time.Minute
	}
	l := logger.With().Str("component", "Checkout").Logger()
	return &checkoutUC{
		tenants:  tenants,
		plans:    plans,
		ledger:   ledger,
		gateways: gateways,
		baseURL:  strings.TrimRight(baseURL, "/"),
		offerTTL: offerTTL,
		log:      &l,
	}
}

func (u *checkoutUC) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	tenant, err := u.tenants.FindByID(ctx, repository.NoTX, req.TenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	if !tenant.AcceptsCommerce() {
		return nil, domain.ErrTenantInactive
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, req.PlanID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPlanInactive
	}
	if err != nil {
		return nil, err
	}
	if plan.TenantID != tenant.ID || !plan.Active {
		return nil, domain.ErrPlanInactive
	}

	gw, err := u.gateways.Get(req.Gateway)
	if err != nil {
		return nil, err
	}

	ref := req.Reference
	if ref == "" {
		ref = ulid.Make().String()
	}

	p, err := u.ledger.Create(ctx, NewPaymentInput{
		TenantID:        tenant.ID,
		PlanID:          plan.ID,
		BuyerExternalID: req.BuyerExternalID,
		Amount:          plan.Price,
		Gateway:         gw.Name(),
		Reference:       ref,
		Description:     plan.Name,
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		// same reference again: hand back what the first call produced
		if p.GatewayTxID() != "" || p.Status != model.PaymentStatusPending {
			return resultOf(p), nil
		}
		u.log.Info().Str("payment_id", p.ID).Msg("duplicate checkout without gateway answer; calling gateway again")
	} else if err != nil {
		return nil, err
	}

	res, err := gw.CreatePayment(ctx, adapter.CreatePaymentRequest{
		Amount:           p.Amount,
		Description:      p.Description,
		BuyerContact:     req.BuyerContact,
		IdempotencyToken: p.ExternalReference,
		TTL:              u.offerTTL,
		NotificationURL:  fmt.Sprintf("%s/webhooks/%s/%s", u.baseURL, gw.Name(), tenant.ID),
	})
	if err != nil {
		if domain.IsTransientGatewayError(err) {
			// ledger stays pending; the same reference can be retried
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("gateway unavailable")
			return nil, err
		}
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("gateway refused payment")
		if _, _, terr := u.ledger.Transition(ctx, p.ID, model.PaymentStatusFailed, ""); terr != nil {
			return nil, errors.Join(err, terr)
		}
		return nil, err
	}

	p, err = u.ledger.AttachGatewayResult(ctx, p.ID, res)
	if err != nil {
		return nil, err
	}
	return resultOf(p), nil
}

func resultOf(p *model.Payment) *CheckoutResult {
	return &CheckoutResult{
		PaymentID:    p.ID,
		Reference:    p.ExternalReference,
		Status:       p.Status,
		Presentation: p.Presentation,
		ExpiresAt:    p.ExpiresAt,
	}
}
