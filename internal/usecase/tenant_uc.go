// File: internal/usecase/tenant_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/logging"
)

// Compile-time check
var _ TenantUseCase = (*tenantUC)(nil)

// TenantUseCase is the tenant registry: onboarding, lookup and operator actions.
type TenantUseCase interface {
	Onboard(ctx context.Context, credential string, ownerID int64, name, welcome string) (*model.Tenant, error)
	// Resolve maps a bot credential to its tenant or domain.ErrTenantNotFound.
	Resolve(ctx context.Context, credential string) (*model.Tenant, error)
	Get(ctx context.Context, id string) (*model.Tenant, error)
	Suspend(ctx context.Context, id string) (*model.Tenant, error)
	ListPlans(ctx context.Context, tenantID string) ([]*model.Plan, error)
	// CreatePlan adds an offering; the group must already be owned by the tenant.
	CreatePlan(ctx context.Context, tenantID, name string, price decimal.Decimal, durationDays int, groupID int64) (*model.Plan, error)
}

type tenantUC struct {
	tenants repository.TenantRepository
	plans   repository.PlanRepository
	log     *zerolog.Logger
}

func NewTenantUseCase(tenants repository.TenantRepository, plans repository.PlanRepository, logger *zerolog.Logger) *tenantUC {
	l := logger.With().Str("component", "TenantRegistry").Logger()
	return &tenantUC{tenants: tenants, plans: plans, log: &l}
}

func (u *tenantUC) Onboard(ctx context.Context, credential string, ownerID int64, name, welcome string) (*model.Tenant, error) {
	t, err := model.NewTenant(uuid.NewString(), strings.TrimSpace(credential), ownerID, name, welcome)
	if err != nil {
		return nil, err
	}
	if err := u.tenants.Save(ctx, repository.NoTX, t); err != nil {
		return nil, err
	}
	u.log.Info().Str("tenant_id", t.ID).Str("credential", logging.Redact(t.Credential, false)).Msg("tenant onboarded")
	return t, nil
}

func (u *tenantUC) Resolve(ctx context.Context, credential string) (*model.Tenant, error) {
	if credential == "" {
		return nil, domain.ErrTenantNotFound
	}
	t, err := u.tenants.FindByCredential(ctx, repository.NoTX, credential)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTenantNotFound
	}
	return t, err
}

func (u *tenantUC) Get(ctx context.Context, id string) (*model.Tenant, error) {
	t, err := u.tenants.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrTenantNotFound
	}
	return t, err
}

func (u *tenantUC) Suspend(ctx context.Context, id string) (*model.Tenant, error) {
	t, err := u.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.tenants.SetActivationStatus(ctx, repository.NoTX, id, model.ActivationSuspended, t.ActivatedAt); err != nil {
		return nil, err
	}
	t.ActivationStatus = model.ActivationSuspended
	// a lookup between the repository's evict and the write may have cached
	// the active row again
	if inv, ok := u.tenants.(TenantCacheInvalidator); ok {
		inv.Invalidate(ctx, t)
	}
	u.log.Info().Str("tenant_id", id).Msg("tenant suspended")
	return t, nil
}

func (u *tenantUC) ListPlans(ctx context.Context, tenantID string) ([]*model.Plan, error) {
	return u.plans.ListActiveByTenant(ctx, repository.NoTX, tenantID)
}

func (u *tenantUC) CreatePlan(ctx context.Context, tenantID, name string, price decimal.Decimal, durationDays int, groupID int64) (*model.Plan, error) {
	t, err := u.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.OwnsGroup(groupID) {
		return nil, fmt.Errorf("group %d not owned by tenant: %w", groupID, domain.ErrInvalidArgument)
	}
	plan, err := model.NewPlan(uuid.NewString(), tenantID, name, price, durationDays, groupID)
	if err != nil {
		return nil, err
	}
	if err := u.plans.Save(ctx, repository.NoTX, plan); err != nil {
		return nil, err
	}
	u.log.Info().Str("tenant_id", tenantID).Str("plan_id", plan.ID).Str("price", price.StringFixed(2)).Msg("plan created")
	return plan, nil
}
