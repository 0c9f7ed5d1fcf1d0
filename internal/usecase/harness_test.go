//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/usecase"
)

const (
	testTenantID = "tenant-1"
	testGroupID  = int64(-100123)
	testBuyer    = int64(4242)
)

// harness wires every use case against in-memory mocks.
type harness struct {
	payments   *MockPaymentRepo
	sales      *MockSaleRepo
	deliveries *MockDeliveryRepo
	plans      *MockPlanRepo
	tenants    *MockTenantRepo
	codes      *MockActivationCodeRepo
	gateway    *MockGateway
	messenger  *MockMessenger
	pool       *inlinePool
	tm         *MockTxManager

	ledger    usecase.LedgerUseCase
	grantor   usecase.GrantUseCase
	reconcile usecase.ReconcileUseCase
	checkout  usecase.CheckoutUseCase
	tenantUC  usecase.TenantUseCase
	activate  usecase.ActivationUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		payments:   NewMockPaymentRepo(),
		sales:      NewMockSaleRepo(),
		deliveries: NewMockDeliveryRepo(),
		plans:      NewMockPlanRepo(),
		tenants:    NewMockTenantRepo(),
		codes:      NewMockActivationCodeRepo(),
		gateway:    NewMockGateway(model.GatewayPushinPay),
		messenger:  &MockMessenger{},
		pool:       &inlinePool{},
		tm:         NewMockTxManager(),
	}
	h.payments.hasSale = h.sales.HasSale
	log := newTestLogger()
	reg := MockRegistry{model.GatewayPushinPay: h.gateway}

	h.ledger = usecase.NewLedgerUseCase(h.payments, h.tm, log)
	h.grantor = usecase.NewGrantUseCase(h.payments, h.sales, h.deliveries, h.plans, h.tenants, h.messenger, nil, h.tm, h.pool, time.Minute, log)
	h.reconcile = usecase.NewReconcileUseCase(h.ledger, h.grantor, h.tenants, h.payments, reg, 30*time.Minute, log)
	h.checkout = usecase.NewCheckoutUseCase(h.tenants, h.plans, h.ledger, reg, "https://pay.example.com/", 0, log)
	h.tenantUC = usecase.NewTenantUseCase(h.tenants, h.plans, log)
	h.activate = usecase.NewActivationUseCase(h.codes, h.tenants, h.tm, 10*time.Minute, log)
	return h
}

// seedActiveTenant stores an active tenant owning testGroupID and a plan.
func (h *harness) seedActiveTenant(t *testing.T, price string, durationDays int) *model.Plan {
	t.Helper()
	ctx := context.Background()
	tn, err := model.NewTenant(testTenantID, "123:bot-token", 1, "Club", "Welcome!")
	if err != nil {
		t.Fatalf("new tenant: %v", err)
	}
	tn.ActivationStatus = model.ActivationActive
	tn.OwnedGroups = []int64{testGroupID}
	if err := h.tenants.Save(ctx, nil, tn); err != nil {
		t.Fatalf("save tenant: %v", err)
	}
	plan, err := model.NewPlan("plan-1", testTenantID, "Monthly", decimal.RequireFromString(price), durationDays, testGroupID)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	if err := h.plans.Save(ctx, nil, plan); err != nil {
		t.Fatalf("save plan: %v", err)
	}
	return plan
}

// newPending creates a pending payment through the ledger.
func (h *harness) newPending(t *testing.T, plan *model.Plan, ref string) *model.Payment {
	t.Helper()
	p, err := h.ledger.Create(context.Background(), usecase.NewPaymentInput{
		TenantID:        testTenantID,
		PlanID:          plan.ID,
		BuyerExternalID: testBuyer,
		Amount:          plan.Price,
		Gateway:         model.GatewayPushinPay,
		Reference:       ref,
		Description:     plan.Name,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}
