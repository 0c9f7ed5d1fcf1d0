// File: internal/usecase/activation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// RedeemContext describes where a code was typed.
type RedeemContext struct {
	TenantID string // tenant whose bot received the message
	GroupID  int64  // group the message was posted in; becomes an owned group
	UserID   int64  // sender
}

// ActivationUseCase gates tenants from setup_required to active.
type ActivationUseCase interface {
	// Issue creates a fresh code for the tenant, voiding its earlier unused ones.
	Issue(ctx context.Context, tenantID string) (*model.ActivationCode, error)
	// Redeem consumes code and activates the tenant atomically. Refusals are
	// *domain.RedemptionError (already used, expired, not found) or domain.ErrTenantSuspended.
	Redeem(ctx context.Context, code string, rc RedeemContext) (*model.Tenant, error)
}

// TenantCacheInvalidator is implemented by cached tenant repositories.
type TenantCacheInvalidator interface {
	Invalidate(ctx context.Context, t *model.Tenant)
}

type activationUC struct {
	codes   repository.ActivationCodeRepository
	tenants repository.TenantRepository
	tm      repository.TransactionManager
	ttl     time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

func NewActivationUseCase(codes repository.ActivationCodeRepository, tenants repository.TenantRepository, tm repository.TransactionManager, ttl time.Duration, logger *zerolog.Logger) *activationUC {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "ActivationRegistry").Logger()
	return &activationUC{codes: codes, tenants: tenants, tm: tm, ttl: ttl, log: &l, now: func() time.Time { return time.Now().UTC() }}
}

func (u *activationUC) Issue(ctx context.Context, tenantID string) (*model.ActivationCode, error) {
	if _, err := u.tenants.FindByID(ctx, repository.NoTX, tenantID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}

	const attempts = 3
	for i := 0; i < attempts; i++ {
		code, err := generateActivationCode()
		if err != nil {
			return nil, err
		}
		now := u.now()
		ac := &model.ActivationCode{Code: code, TenantID: tenantID, CreatedAt: now, ExpiresAt: now.Add(u.ttl)}
		err = u.codes.Insert(ctx, repository.NoTX, ac)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		u.log.Info().Str("tenant_id", tenantID).Time("expires_at", ac.ExpiresAt).Msg("activation code issued")
		return ac, nil
	}
	return nil, fmt.Errorf("issue activation code: %w", domain.ErrOperationFailed)
}

func (u *activationUC) Redeem(ctx context.Context, code string, rc RedeemContext) (*model.Tenant, error) {
	code, ok := NormalizeActivationCode(code)
	if !ok {
		metrics.IncActivation(string(domain.RedemptionNotFound))
		return nil, &domain.RedemptionError{Reason: domain.RedemptionNotFound}
	}

	var out *model.Tenant
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		ac, err := u.codes.FindByCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.RedemptionError{Reason: domain.RedemptionNotFound}
		}
		if err != nil {
			return err
		}
		// a code only activates the bot it was issued for
		if ac.TenantID != rc.TenantID {
			return &domain.RedemptionError{Reason: domain.RedemptionNotFound}
		}
		now := u.now()
		if err := ac.Check(now); err != nil {
			return err
		}

		t, err := u.tenants.FindByID(ctx, tx, ac.TenantID)
		if err != nil {
			return err
		}
		if t.ActivationStatus == model.ActivationSuspended {
			return domain.ErrTenantSuspended
		}

		used, err := u.codes.MarkUsed(ctx, tx, code, rc.UserID, now)
		if err != nil {
			return err
		}
		if !used {
			return &domain.RedemptionError{Reason: domain.RedemptionAlreadyUsed}
		}
		if err := u.tenants.SetActivationStatus(ctx, tx, t.ID, model.ActivationActive, &now); err != nil {
			return err
		}
		if rc.GroupID != 0 && !t.OwnsGroup(rc.GroupID) {
			if err := u.tenants.AddGroup(ctx, tx, t.ID, rc.GroupID); err != nil {
				return err
			}
			t.OwnedGroups = append(t.OwnedGroups, rc.GroupID)
		}
		t.ActivationStatus = model.ActivationActive
		t.ActivatedAt = &now
		out = t
		return nil
	})
	if err != nil {
		metrics.IncActivation(redemptionResult(err))
		return nil, err
	}

	if inv, ok := u.tenants.(TenantCacheInvalidator); ok {
		inv.Invalidate(ctx, out)
	}
	metrics.IncActivation("ok")
	u.log.Info().Str("tenant_id", out.ID).Int64("group_id", rc.GroupID).Int64("by", rc.UserID).Msg("tenant activated")
	return out, nil
}

func redemptionResult(err error) string {
	var re *domain.RedemptionError
	switch {
	case errors.As(err, &re):
		return string(re.Reason)
	case errors.Is(err, domain.ErrTenantSuspended):
		return "suspended"
	}
	return "error"
}
