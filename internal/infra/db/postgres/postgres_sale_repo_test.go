//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
)

func TestSaleAndDeliveryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	payments := NewPaymentRepo(testPool)
	sales := NewSaleRepo(testPool)
	deliveries := NewInviteDeliveryRepo(testPool)

	seedSale := func(t *testing.T, expires *time.Time) (*model.Tenant, *model.Sale) {
		tenant, plan := seedTenantAndPlan(t, ctx)
		p := newPendingPayment(t, tenant, plan, uuid.NewString())
		if err := payments.Insert(ctx, nil, p); err != nil {
			t.Fatalf("insert payment: %v", err)
		}
		s := &model.Sale{
			ID: uuid.NewString(), PaymentID: p.ID, TenantID: tenant.ID, PlanID: plan.ID,
			BuyerExternalID: p.BuyerExternalID, Amount: p.Amount, AccessExpiresAt: expires, CreatedAt: time.Now().UTC(),
		}
		if err := sales.Insert(ctx, nil, s); err != nil {
			t.Fatalf("insert sale: %v", err)
		}
		return tenant, s
	}

	t.Run("one sale per payment", func(t *testing.T) {
		_, s := seedSale(t, nil)
		dup := *s
		dup.ID = uuid.NewString()
		if err := sales.Insert(ctx, nil, &dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		got, err := sales.FindByPaymentID(ctx, nil, s.PaymentID)
		if err != nil || got.ID != s.ID || got.AccessExpiresAt != nil {
			t.Fatalf("unexpected sale: %+v %v", got, err)
		}
	})

	t.Run("expired sales until revoked", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).UTC()
		_, s := seedSale(t, &past)

		got, err := sales.ListExpiredUnrevoked(ctx, nil, time.Now(), 10)
		if err != nil || len(got) != 1 || got[0].ID != s.ID {
			t.Fatalf("expired sale not listed: %v %v", got, err)
		}
		if err := sales.SaveRevocation(ctx, nil, &model.AccessRevocation{SaleID: s.ID, RevokedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("save revocation: %v", err)
		}
		got, _ = sales.ListExpiredUnrevoked(ctx, nil, time.Now(), 10)
		if len(got) != 0 {
			t.Fatalf("revoked sale still listed")
		}
	})

	t.Run("delivery claim lifecycle", func(t *testing.T) {
		tenant, s := seedSale(t, nil)
		d := &model.InviteDelivery{
			ID: uuid.NewString(), SaleID: s.ID, TenantID: tenant.ID, GroupID: -100123,
			BuyerExternalID: s.BuyerExternalID, Status: model.DeliveryPending, CreatedAt: time.Now().UTC(),
		}
		if err := deliveries.Insert(ctx, nil, d); err != nil {
			t.Fatalf("insert delivery: %v", err)
		}

		now := time.Now().UTC()
		claimed, err := deliveries.Claim(ctx, nil, s.ID, now, now.Add(-2*time.Minute))
		if err != nil || claimed.Status != model.DeliverySending {
			t.Fatalf("claim: %+v %v", claimed, err)
		}
		if _, err := deliveries.Claim(ctx, nil, s.ID, now, now.Add(-2*time.Minute)); !errors.Is(err, domain.ErrDeliveryClaimed) {
			t.Fatalf("expected ErrDeliveryClaimed, got %v", err)
		}
		if _, err := deliveries.Claim(ctx, nil, "missing", now, now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		// a stale claim can be taken over
		if _, err := deliveries.Claim(ctx, nil, s.ID, now.Add(3*time.Minute), now.Add(time.Minute)); err != nil {
			t.Fatalf("stale claim takeover: %v", err)
		}

		_ = deliveries.SetLink(ctx, nil, s.ID, "https://t.me/+a")
		_ = deliveries.SetLink(ctx, nil, s.ID, "https://t.me/+b")
		if err := deliveries.Release(ctx, nil, s.ID, "boom"); err != nil {
			t.Fatalf("release: %v", err)
		}
		got, _ := deliveries.FindBySaleID(ctx, nil, s.ID)
		if got.InviteLink != "https://t.me/+a" || got.Attempts != 1 || got.Status != model.DeliveryPending {
			t.Fatalf("unexpected delivery: %+v", got)
		}

		retry, err := deliveries.ListRetryable(ctx, nil, now, 10)
		if err != nil || len(retry) != 1 {
			t.Fatalf("retryable: %v %v", retry, err)
		}
		if err := deliveries.MarkSent(ctx, nil, s.ID, now); err != nil {
			t.Fatalf("mark sent: %v", err)
		}
		retry, _ = deliveries.ListRetryable(ctx, nil, now, 10)
		if len(retry) != 0 {
			t.Fatalf("sent delivery still retryable")
		}
	})
}
