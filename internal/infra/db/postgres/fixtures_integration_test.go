//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain/model"
)

// seedTenantAndPlan stores an active tenant with one 30-day plan.
func seedTenantAndPlan(t *testing.T, ctx context.Context) (*model.Tenant, *model.Plan) {
	t.Helper()
	cleanup(t)

	tenant, err := model.NewTenant(uuid.NewString(), "123:"+uuid.NewString(), 42, "Shop", "hi")
	if err != nil {
		t.Fatalf("new tenant: %v", err)
	}
	if err := NewTenantRepo(testPool).Save(ctx, nil, tenant); err != nil {
		t.Fatalf("save tenant: %v", err)
	}
	plan, err := model.NewPlan(uuid.NewString(), tenant.ID, "Monthly", decimal.RequireFromString("19.90"), 30, -100123)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	if err := NewPostgresPlanRepo(testPool).Save(ctx, nil, plan); err != nil {
		t.Fatalf("save plan: %v", err)
	}
	return tenant, plan
}

func newPendingPayment(t *testing.T, tenant *model.Tenant, plan *model.Plan, ref string) *model.Payment {
	t.Helper()
	p, err := model.NewPayment(uuid.NewString(), tenant.ID, plan.ID, 555, plan.Price, model.GatewaySandbox, ref, plan.Name)
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	p.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	p.UpdatedAt = p.CreatedAt
	return p
}
