// File: internal/usecase/grant_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/i18n"
	"telegram-group-access/internal/infra/metrics"
)

// Compile-time check
var _ GrantUseCase = (*grantUC)(nil)

// TaskSubmitter hands work to a background pool. Submit fails fast when the
// pool is saturated.
type TaskSubmitter interface {
	Submit(task func(ctx context.Context) error) error
}

// GrantUseCase turns completed payments into sales and single-use invites.
type GrantUseCase interface {
	// Grant records the Sale for a completed payment (once) and queues its invite.
	Grant(ctx context.Context, p *model.Payment) (*model.Sale, error)
	// Deliver issues and sends the invite for a sale; safe to call repeatedly.
	Deliver(ctx context.Context, saleID string) error
	// RecoverMissingSales grants every completed payment that has no sale.
	RecoverMissingSales(ctx context.Context, limit int) (int, error)
	// RetryDeliveries re-runs pending or abandoned invite deliveries.
	RetryDeliveries(ctx context.Context, limit int) (int, error)
	// RevokeExpired removes buyers whose access window has closed.
	RevokeExpired(ctx context.Context, limit int) (int, error)
}

// Texts renders buyer-facing messages in the deployment's locale.
type Texts interface {
	T(key string, args ...interface{}) string
}

type grantUC struct {
	payments   repository.PaymentRepository
	sales      repository.SaleRepository
	deliveries repository.InviteDeliveryRepository
	plans      repository.PlanRepository
	tenants    repository.TenantRepository
	messenger  adapter.Messenger
	texts      Texts
	tm         repository.TransactionManager
	pool       TaskSubmitter
	lease      time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

func NewGrantUseCase(
	payments repository.PaymentRepository,
	sales repository.SaleRepository,
	deliveries repository.InviteDeliveryRepository,
	plans repository.PlanRepository,
	tenants repository.TenantRepository,
	messenger adapter.Messenger,
	texts Texts,
	tm repository.TransactionManager,
	pool TaskSubmitter,
	lease time.Duration,
	logger *zerolog.Logger,
) *grantUC {
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	if texts == nil {
		texts = i18n.MustDefault()
	}
	l := logger.With().Str("component", "AccessGrantor").Logger()
	return &grantUC{
		payments:   payments,
		sales:      sales,
		deliveries: deliveries,
		plans:      plans,
		tenants:    tenants,
		messenger:  messenger,
		texts:      texts,
		tm:         tm,
		pool:       pool,
		lease:      lease,
		log:        &l,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (u *grantUC) Grant(ctx context.Context, p *model.Payment) (*model.Sale, error) {
	if p == nil || p.Status != model.PaymentStatusCompleted {
		return nil, domain.ErrInvalidArgument
	}

	if existing, err := u.sales.FindByPaymentID(ctx, repository.NoTX, p.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, p.PlanID)
	if err != nil {
		return nil, fmt.Errorf("grant: load plan: %w", err)
	}

	completedAt := p.UpdatedAt
	if p.CompletedAt != nil {
		completedAt = *p.CompletedAt
	}
	now := u.now()
	sale := &model.Sale{
		ID:              ulid.Make().String(),
		PaymentID:       p.ID,
		TenantID:        p.TenantID,
		PlanID:          p.PlanID,
		BuyerExternalID: p.BuyerExternalID,
		Amount:          p.Amount,
		AccessExpiresAt: model.AccessExpiry(completedAt, plan.AccessDuration),
		CreatedAt:       now,
	}
	delivery := &model.InviteDelivery{
		ID:              ulid.Make().String(),
		SaleID:          sale.ID,
		TenantID:        p.TenantID,
		GroupID:         plan.GroupID,
		BuyerExternalID: p.BuyerExternalID,
		Status:          model.DeliveryPending,
		CreatedAt:       now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.sales.Insert(ctx, tx, sale); err != nil {
			return err
		}
		return u.deliveries.Insert(ctx, tx, delivery)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// lost the race on payment_id; the committed sale is canonical
		return u.sales.FindByPaymentID(ctx, repository.NoTX, p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("grant: persist sale: %w", err)
	}

	metrics.IncSale()
	u.log.Info().Str("sale_id", sale.ID).Str("payment_id", p.ID).Msg("sale recorded")
	u.dispatch(sale.ID)
	return sale, nil
}

// dispatch hands the invite to the pool; recovery picks it up if the pool refuses.
func (u *grantUC) dispatch(saleID string) {
	if u.pool == nil {
		metrics.IncInvite("queued")
		return
	}
	err := u.pool.Submit(func(ctx context.Context) error { return u.Deliver(ctx, saleID) })
	if err != nil {
		metrics.IncInvite("queued")
		u.log.Warn().Err(err).Str("sale_id", saleID).Msg("invite left for recovery")
	}
}

func (u *grantUC) Deliver(ctx context.Context, saleID string) error {
	now := u.now()
	d, err := u.deliveries.Claim(ctx, repository.NoTX, saleID, now, now.Add(-u.lease))
	if errors.Is(err, domain.ErrDeliveryClaimed) {
		metrics.IncInvite("skipped")
		return nil
	}
	if err != nil {
		return err
	}

	tenant, err := u.tenants.FindByID(ctx, repository.NoTX, d.TenantID)
	if err != nil {
		return u.release(ctx, d, fmt.Errorf("load tenant: %w", err))
	}

	link := d.InviteLink
	if link == "" {
		link, err = u.messenger.CreateSingleUseInvite(ctx, tenant.Credential, d.GroupID)
		if err != nil {
			return u.release(ctx, d, fmt.Errorf("create invite: %w", err))
		}
		if err := u.deliveries.SetLink(ctx, repository.NoTX, saleID, link); err != nil {
			return u.release(ctx, d, fmt.Errorf("store invite: %w", err))
		}
	}

	sale, err := u.sales.FindByID(ctx, repository.NoTX, saleID)
	if err != nil {
		return u.release(ctx, d, fmt.Errorf("load sale: %w", err))
	}
	if err := u.messenger.SendMessage(ctx, tenant.Credential, d.BuyerExternalID, u.accessGrantedText(link, sale.AccessExpiresAt)); err != nil {
		return u.release(ctx, d, fmt.Errorf("send invite: %w", err))
	}

	if err := u.deliveries.MarkSent(ctx, repository.NoTX, saleID, u.now()); err != nil {
		return err
	}
	metrics.IncInvite("sent")
	u.log.Info().Str("sale_id", saleID).Int64("buyer", d.BuyerExternalID).Msg("invite delivered")
	return nil
}

func (u *grantUC) release(ctx context.Context, d *model.InviteDelivery, cause error) error {
	metrics.IncInvite("failed")
	u.log.Warn().Err(cause).Str("sale_id", d.SaleID).Int("attempt", d.Attempts+1).Msg("invite delivery failed")
	if err := u.deliveries.Release(ctx, repository.NoTX, d.SaleID, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (u *grantUC) RecoverMissingSales(ctx context.Context, limit int) (int, error) {
	items, err := u.payments.ListCompletedWithoutSale(ctx, repository.NoTX, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range items {
		if _, err := u.Grant(ctx, p); err != nil {
			u.log.Error().Err(err).Str("payment_id", p.ID).Msg("grant recovery failed")
			continue
		}
		n++
	}
	return n, nil
}

func (u *grantUC) RetryDeliveries(ctx context.Context, limit int) (int, error) {
	items, err := u.deliveries.ListRetryable(ctx, repository.NoTX, u.now().Add(-u.lease), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range items {
		if err := u.Deliver(ctx, d.SaleID); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

func (u *grantUC) RevokeExpired(ctx context.Context, limit int) (int, error) {
	now := u.now()
	items, err := u.sales.ListExpiredUnrevoked(ctx, repository.NoTX, now, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range items {
		tenant, err := u.tenants.FindByID(ctx, repository.NoTX, s.TenantID)
		if err != nil {
			u.log.Error().Err(err).Str("sale_id", s.ID).Msg("revoke: load tenant")
			continue
		}
		plan, err := u.plans.FindByID(ctx, repository.NoTX, s.PlanID)
		if err != nil {
			u.log.Error().Err(err).Str("sale_id", s.ID).Msg("revoke: load plan")
			continue
		}
		if err := u.messenger.RevokeMembership(ctx, tenant.Credential, plan.GroupID, s.BuyerExternalID); err != nil {
			metrics.IncAccessRevocation("error")
			u.log.Warn().Err(err).Str("sale_id", s.ID).Msg("revoke membership failed; will retry")
			continue
		}
		// notification is best effort; the revocation already happened
		if err := u.messenger.SendMessage(ctx, tenant.Credential, s.BuyerExternalID, u.texts.T("access_expired", plan.Name)); err != nil {
			u.log.Debug().Err(err).Str("sale_id", s.ID).Msg("expiry notice not delivered")
		}
		if err := u.sales.SaveRevocation(ctx, repository.NoTX, &model.AccessRevocation{SaleID: s.ID, RevokedAt: now}); err != nil {
			u.log.Error().Err(err).Str("sale_id", s.ID).Msg("record revocation")
			continue
		}
		metrics.IncAccessRevocation("ok")
		n++
	}
	return n, nil
}

func (u *grantUC) accessGrantedText(link string, expiresAt *time.Time) string {
	until := u.texts.T("access_lifetime")
	if expiresAt != nil {
		until = u.texts.T("access_until", expiresAt.Format("2006-01-02 15:04 MST"))
	}
	return u.texts.T("access_granted", link, until)
}
