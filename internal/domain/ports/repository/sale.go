package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// SaleRepository stores sales; payment_id is unique.
type SaleRepository interface {
	// Insert returns domain.ErrAlreadyExists when a sale exists for the payment.
	Insert(ctx context.Context, tx Tx, s *model.Sale) error
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Sale, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Sale, error)
	// ListExpiredUnrevoked returns sales whose access window closed before now
	// and that have no AccessRevocation yet.
	ListExpiredUnrevoked(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Sale, error)
	SaveRevocation(ctx context.Context, tx Tx, r *model.AccessRevocation) error
}

// InviteDeliveryRepository is the outbox for single-use invites; sale_id is unique.
type InviteDeliveryRepository interface {
	Insert(ctx context.Context, tx Tx, d *model.InviteDelivery) error
	FindBySaleID(ctx context.Context, tx Tx, saleID string) (*model.InviteDelivery, error)
	// Claim moves a pending delivery (or a sending one whose claim is older than
	// staleBefore) to sending. It returns domain.ErrDeliveryClaimed otherwise.
	Claim(ctx context.Context, tx Tx, saleID string, now, staleBefore time.Time) (*model.InviteDelivery, error)
	SetLink(ctx context.Context, tx Tx, saleID, link string) error
	MarkSent(ctx context.Context, tx Tx, saleID string, at time.Time) error
	// Release returns a claimed delivery to pending and records the failure.
	Release(ctx context.Context, tx Tx, saleID, lastError string) error
	ListRetryable(ctx context.Context, tx Tx, staleBefore time.Time, limit int) ([]*model.InviteDelivery, error)
}
