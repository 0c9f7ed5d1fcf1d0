//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/usecase"
)

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	req := usecase.CheckoutRequest{TenantID: testTenantID, PlanID: "plan-1", BuyerExternalID: testBuyer, Gateway: model.GatewayPushinPay}

	t.Run("creates payment and returns presentation", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)

		res, err := h.checkout.Checkout(ctx, req)
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if res.Status != model.PaymentStatusPending || len(res.Presentation) == 0 || res.Reference == "" {
			t.Errorf("unexpected result: %+v", res)
		}
		sent := h.gateway.LastRequest
		if !sent.Amount.Equal(decimal.RequireFromString("29.90")) {
			t.Errorf("amount sent = %s", sent.Amount)
		}
		if sent.IdempotencyToken != res.Reference {
			t.Errorf("idempotency token %q != reference %q", sent.IdempotencyToken, res.Reference)
		}
		if sent.NotificationURL != "https://pay.example.com/webhooks/pushinpay/"+testTenantID {
			t.Errorf("notification url = %q", sent.NotificationURL)
		}
	})

	t.Run("duplicate reference returns stored presentation without a new gateway call", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)
		r := req
		r.Reference = "abc123"

		first, err := h.checkout.Checkout(ctx, r)
		if err != nil {
			t.Fatal(err)
		}
		second, err := h.checkout.Checkout(ctx, r)
		if err != nil {
			t.Fatal(err)
		}
		if first.PaymentID != second.PaymentID || string(first.Presentation) != string(second.Presentation) {
			t.Errorf("duplicate checkout diverged: %+v vs %+v", first, second)
		}
		if h.gateway.Calls() != 1 {
			t.Errorf("gateway calls = %d, want 1", h.gateway.Calls())
		}
	})

	t.Run("transient gateway failure leaves payment pending and retryable", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)
		r := req
		r.Reference = "abc123"

		h.gateway.CreateFunc = func(ctx context.Context, _ adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
			return adapter.CreatePaymentResult{}, &domain.GatewayError{Gateway: "pushinpay", Op: "create_payment", Transient: true, Err: errors.New("503")}
		}
		if _, err := h.checkout.Checkout(ctx, r); !domain.IsTransientGatewayError(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
		p, _ := h.ledger.GetByReference(ctx, testTenantID, "abc123")
		if p.Status != model.PaymentStatusPending {
			t.Fatalf("status = %s", p.Status)
		}

		h.gateway.CreateFunc = nil
		res, err := h.checkout.Checkout(ctx, r)
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if res.PaymentID != p.ID || len(res.Presentation) == 0 {
			t.Errorf("retry result: %+v", res)
		}
	})

	t.Run("permanent gateway failure fails the payment", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)
		r := req
		r.Reference = "abc123"
		h.gateway.CreateFunc = func(ctx context.Context, _ adapter.CreatePaymentRequest) (adapter.CreatePaymentResult, error) {
			return adapter.CreatePaymentResult{}, &domain.GatewayError{Gateway: "pushinpay", Op: "create_payment", Err: errors.New("invalid value")}
		}
		if _, err := h.checkout.Checkout(ctx, r); err == nil {
			t.Fatal("expected an error")
		}
		p, _ := h.ledger.GetByReference(ctx, testTenantID, "abc123")
		if p.Status != model.PaymentStatusFailed {
			t.Errorf("status = %s, want failed", p.Status)
		}
	})

	t.Run("refusals", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)

		cases := []struct {
			name   string
			mutate func(r *usecase.CheckoutRequest)
			want   error
		}{
			{"unknown tenant", func(r *usecase.CheckoutRequest) { r.TenantID = "ghost" }, domain.ErrTenantNotFound},
			{"unknown plan", func(r *usecase.CheckoutRequest) { r.PlanID = "nope" }, domain.ErrPlanInactive},
			{"unknown gateway", func(r *usecase.CheckoutRequest) { r.Gateway = "paypal" }, domain.ErrUnsupportedGateway},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				r := req
				tc.mutate(&r)
				if _, err := h.checkout.Checkout(ctx, r); !errors.Is(err, tc.want) {
					t.Errorf("got %v, want %v", err, tc.want)
				}
			})
		}

		other, _ := model.NewPlan("plan-x", "tenant-2", "Other", decimal.NewFromInt(5), 0, 1)
		_ = h.plans.Save(ctx, nil, other)
		r := req
		r.PlanID = other.ID
		if _, err := h.checkout.Checkout(ctx, r); !errors.Is(err, domain.ErrPlanInactive) {
			t.Errorf("foreign plan: %v", err)
		}
	})

	t.Run("inactive tenant", func(t *testing.T) {
		h := newHarness(t)
		h.seedActiveTenant(t, "29.90", 30)
		if _, err := h.tenantUC.Suspend(ctx, testTenantID); err != nil {
			t.Fatal(err)
		}
		if _, err := h.checkout.Checkout(ctx, req); !errors.Is(err, domain.ErrTenantInactive) {
			t.Fatalf("expected ErrTenantInactive, got %v", err)
		}
	})
}

func TestTenantRegistry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tn, err := h.tenantUC.Onboard(ctx, " 777:token ", 99, "Club", "hello")
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if tn.ActivationStatus != model.ActivationSetupRequired {
		t.Errorf("status = %s", tn.ActivationStatus)
	}
	if _, err := h.tenantUC.Onboard(ctx, "777:token", 100, "Copy", ""); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate credential: %v", err)
	}

	got, err := h.tenantUC.Resolve(ctx, "777:token")
	if err != nil || got.ID != tn.ID {
		t.Fatalf("resolve: %v %+v", err, got)
	}
	if _, err := h.tenantUC.Resolve(ctx, "nope"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("unknown credential: %v", err)
	}

	if _, err := h.tenantUC.CreatePlan(ctx, tn.ID, "Monthly", decimal.RequireFromString("19.90"), 30, testGroupID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("plan for a group the tenant does not own: %v", err)
	}
	_ = h.tenants.AddGroup(ctx, nil, tn.ID, testGroupID)
	plan, err := h.tenantUC.CreatePlan(ctx, tn.ID, "Monthly", decimal.RequireFromString("19.90"), 30, testGroupID)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	plans, _ := h.tenantUC.ListPlans(ctx, tn.ID)
	if len(plans) != 1 || plans[0].ID != plan.ID || plans[0].Lifetime() {
		t.Errorf("plans = %+v", plans)
	}
}
