package repository

import (
	"context"
	"encoding/json"
	"time"

	"telegram-group-access/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// PaymentRepository is the durable ledger store. The (tenant_id, external_reference)
// unique constraint is the concurrency primitive for creation.
type PaymentRepository interface {
	// Insert stores a new payment. It returns domain.ErrAlreadyExists when the
	// (tenant, reference) pair is taken.
	Insert(ctx context.Context, tx Tx, p *model.Payment) error
	// FindByID locks the row (FOR UPDATE) when tx is a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByReference(ctx context.Context, tx Tx, tenantID, reference string) (*model.Payment, error)
	FindByGatewayTransaction(ctx context.Context, tx Tx, tenantID string, gateway model.Gateway, gatewayTxID string) (*model.Payment, error)
	// UpdateStatusIf moves the payment from -> to only when its current status is
	// still from. It reports whether a row changed.
	UpdateStatusIf(ctx context.Context, tx Tx, id string, from, to model.PaymentStatus, gatewayTxID *string, completedAt *time.Time) (bool, error)
	// AttachGatewayResult sets gateway data once; it reports false if already set.
	AttachGatewayResult(ctx context.Context, tx Tx, id, gatewayTxID string, presentation json.RawMessage, expiresAt *time.Time) (bool, error)
	// ListPendingOlderThan returns pending payments the gateway has answered
	// for (they carry a provider id and can be polled), oldest first.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// ListUnsubmittedPending returns pending payments created before createdBefore
	// that never received a provider id.
	ListUnsubmittedPending(ctx context.Context, tx Tx, createdBefore time.Time, limit int) ([]*model.Payment, error)
	ListCompletedWithoutSale(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
}
