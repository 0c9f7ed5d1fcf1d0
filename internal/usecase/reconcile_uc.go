// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// WebhookOutcome is what happened to an inbound notification. Every outcome
// is acknowledged to the provider with success.
type WebhookOutcome string

const (
	OutcomeApplied WebhookOutcome = "applied" // the ledger moved
	OutcomeNoop    WebhookOutcome = "noop"    // replay, stale or invalid transition
	OutcomeOrphan  WebhookOutcome = "orphan"  // unknown tenant or reference
	OutcomeIgnored WebhookOutcome = "ignored" // event without payment status
)

// ReconcileUseCase funnels webhook and poll results through one transition path.
type ReconcileUseCase interface {
	// HandleWebhook parses a gateway notification and applies it. A returned
	// error means the transition did not land and the provider should retry.
	HandleWebhook(ctx context.Context, gateway model.Gateway, tenantID string, req adapter.WebhookRequest) (WebhookOutcome, error)
	// Refresh asks the gateway for the payment's current status (poll path).
	Refresh(ctx context.Context, paymentID string) (*model.Payment, error)
	// ReconcileStale polls pending payments older than olderThan and fails
	// pending payments the gateway never accepted or that outlived their offer.
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type reconcileUC struct {
	ledger   LedgerUseCase
	grantor  GrantUseCase
	tenants  repository.TenantRepository
	payments repository.PaymentRepository
	gateways adapter.GatewayRegistry
	// abandonAfter is how long a payment may sit pending without a gateway
	// answer, and how long past its offer expiry the poller keeps asking.
	abandonAfter time.Duration
	log          *zerolog.Logger
}

func NewReconcileUseCase(
	ledger LedgerUseCase,
	grantor GrantUseCase,
	tenants repository.TenantRepository,
	payments repository.PaymentRepository,
	gateways adapter.GatewayRegistry,
	offerTTL time.Duration,
	logger *zerolog.Logger,
) *reconcileUC {
	if offerTTL <= 0 {
		offerTTL = 30 * time.Minute
	}
	l := logger.With().Str("component", "Reconciler").Logger()
	return &reconcileUC{
		ledger:       ledger,
		grantor:      grantor,
		tenants:      tenants,
		payments:     payments,
		gateways:     gateways,
		abandonAfter: offerTTL,
		log:          &l,
	}
}

func (u *reconcileUC) HandleWebhook(ctx context.Context, gateway model.Gateway, tenantID string, req adapter.WebhookRequest) (WebhookOutcome, error) {
	gw, err := u.gateways.Get(gateway)
	if err != nil {
		return "", err
	}
	log := u.log.With().Str("gateway", string(gateway)).Str("tenant_id", tenantID).Logger()

	if _, err := u.tenants.FindByID(ctx, repository.NoTX, tenantID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// answered before any signature check, so keep the caller's address
			log.Warn().Str("remote_addr", req.RemoteAddr).Str("user_agent", req.Header.Get("User-Agent")).
				Int("body_bytes", len(req.Body)).Msg("orphan webhook: unknown tenant")
			metrics.IncWebhook(string(gateway), string(OutcomeOrphan))
			return OutcomeOrphan, nil
		}
		return "", err
	}

	ev, err := gw.ParseWebhook(ctx, req)
	switch {
	case errors.Is(err, domain.ErrIgnoredEvent):
		metrics.IncWebhook(string(gateway), string(OutcomeIgnored))
		return OutcomeIgnored, nil
	case errors.Is(err, domain.ErrInvalidSignature):
		metrics.IncWebhook(string(gateway), "bad_signature")
		return "", err
	case err != nil:
		if domain.IsTransientGatewayError(err) {
			metrics.IncWebhook(string(gateway), "error")
		} else {
			metrics.IncWebhook(string(gateway), "bad_payload")
		}
		return "", err
	}

	p, err := u.lookup(ctx, tenantID, gateway, ev)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("reference", ev.Reference).Str("provider_id", ev.ProviderPaymentID).
			Str("status", string(ev.Status)).Msg("orphan webhook: unknown payment")
		metrics.IncWebhook(string(gateway), string(OutcomeOrphan))
		return OutcomeOrphan, nil
	}
	if err != nil {
		metrics.IncWebhook(string(gateway), "error")
		return "", err
	}
	if p.Gateway != gateway {
		log.Warn().Str("payment_id", p.ID).Str("payment_gateway", string(p.Gateway)).Msg("webhook from a different gateway than the payment's")
		metrics.IncWebhook(string(gateway), string(OutcomeOrphan))
		return OutcomeOrphan, nil
	}

	_, changed, err := u.apply(ctx, p, ev.Status, ev.ProviderPaymentID)
	if err != nil {
		metrics.IncWebhook(string(gateway), "error")
		return "", err
	}
	outcome := OutcomeNoop
	if changed {
		outcome = OutcomeApplied
	}
	metrics.IncWebhook(string(gateway), string(outcome))
	return outcome, nil
}

func (u *reconcileUC) lookup(ctx context.Context, tenantID string, gateway model.Gateway, ev adapter.WebhookEvent) (*model.Payment, error) {
	if ev.Reference != "" {
		return u.ledger.GetByReference(ctx, tenantID, ev.Reference)
	}
	if ev.ProviderPaymentID != "" {
		return u.ledger.GetByGatewayTransaction(ctx, tenantID, gateway, ev.ProviderPaymentID)
	}
	return nil, domain.ErrNotFound
}

func (u *reconcileUC) Refresh(ctx context.Context, paymentID string) (*model.Payment, error) {
	p, err := u.ledger.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.GatewayTxID() == "" || p.Status.Terminal() {
		return p, nil
	}
	gw, err := u.gateways.Get(p.Gateway)
	if err != nil {
		return nil, err
	}
	status, err := gw.FetchStatus(ctx, p.GatewayTxID())
	if err != nil {
		// a failed call never touches the ledger
		return nil, fmt.Errorf("refresh %s: %w", p.ID, err)
	}
	out, _, err := u.apply(ctx, p, status, p.GatewayTxID())
	return out, err
}

func (u *reconcileUC) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	now := time.Now()
	// only rows with a provider id can be polled
	pending, err := u.payments.ListPendingOlderThan(ctx, repository.NoTX, now.Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pending {
		out, err := u.Refresh(ctx, p.ID)
		if err != nil {
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("stale payment refresh failed")
			continue
		}
		if out.Status == model.PaymentStatusPending && out.ExpiresAt != nil && now.After(out.ExpiresAt.Add(u.abandonAfter)) {
			u.log.Warn().Str("payment_id", out.ID).Time("expires_at", *out.ExpiresAt).Msg("gateway still reports pending long after expiry; failing")
			out, err = u.expire(ctx, out.ID)
			if err != nil {
				continue
			}
		}
		if out.Status != model.PaymentStatusPending {
			n++
		}
	}

	abandoned, err := u.payments.ListUnsubmittedPending(ctx, repository.NoTX, now.Add(-u.abandonAfter), limit)
	if err != nil {
		return n, err
	}
	for _, p := range abandoned {
		out, err := u.expire(ctx, p.ID)
		if err != nil {
			continue
		}
		if out.Status != model.PaymentStatusPending {
			n++
		}
	}
	return n, nil
}

func (u *reconcileUC) expire(ctx context.Context, paymentID string) (*model.Payment, error) {
	out, _, err := u.ledger.Transition(ctx, paymentID, model.PaymentStatusFailed, "")
	if err != nil {
		u.log.Warn().Err(err).Str("payment_id", paymentID).Msg("expire stale payment failed")
		return nil, err
	}
	return out, nil
}

// apply is the single transition path shared by webhooks and polling.
func (u *reconcileUC) apply(ctx context.Context, p *model.Payment, status model.PaymentStatus, gatewayTxID string) (*model.Payment, bool, error) {
	out, changed, err := u.ledger.Transition(ctx, p.ID, status, gatewayTxID)
	if err != nil {
		return nil, false, err
	}
	if changed && out.Status == model.PaymentStatusCompleted {
		// payment truth stands even if the grant fails; recovery retries it
		if _, err := u.grantor.Grant(ctx, out); err != nil {
			u.log.Error().Err(err).Str("payment_id", out.ID).Msg("grant failed; left for recovery")
		}
	}
	return out, changed, nil
}
