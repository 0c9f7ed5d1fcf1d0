// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// NewPaymentInput describes a purchase attempt before it reaches a gateway.
type NewPaymentInput struct {
	TenantID        string
	PlanID          string
	BuyerExternalID int64
	Amount          decimal.Decimal
	Gateway         model.Gateway
	Reference       string
	Description     string
}

// LedgerUseCase owns payment records and their state machine.
type LedgerUseCase interface {
	// Create stores a pending payment. If the (tenant, reference) pair already
	// exists it returns the existing payment together with domain.ErrDuplicateReference.
	Create(ctx context.Context, in NewPaymentInput) (*model.Payment, error)
	// Transition applies pending->completed, pending->failed or completed->refunded.
	// Any other request is a no-op and returns the unchanged payment; changed
	// reports whether this call moved the status.
	Transition(ctx context.Context, paymentID string, to model.PaymentStatus, gatewayTxID string) (p *model.Payment, changed bool, err error)
	AttachGatewayResult(ctx context.Context, paymentID string, res adapter.CreatePaymentResult) (*model.Payment, error)
	Get(ctx context.Context, paymentID string) (*model.Payment, error)
	GetByReference(ctx context.Context, tenantID, reference string) (*model.Payment, error)
	GetByGatewayTransaction(ctx context.Context, tenantID string, gateway model.Gateway, gatewayTxID string) (*model.Payment, error)
}

type ledgerUC struct {
	payments repository.PaymentRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewLedgerUseCase(payments repository.PaymentRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	l := logger.With().Str("component", "Ledger").Logger()
	return &ledgerUC{payments: payments, tm: tm, log: &l, now: func() time.Time { return time.Now().UTC() }}
}

func (u *ledgerUC) Create(ctx context.Context, in NewPaymentInput) (*model.Payment, error) {
	p, err := model.NewPayment(uuid.NewString(), in.TenantID, in.PlanID, in.BuyerExternalID, in.Amount, in.Gateway, in.Reference, in.Description)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = u.now()
	p.UpdatedAt = p.CreatedAt

	err = u.payments.Insert(ctx, repository.NoTX, p)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// someone else created it first; theirs is canonical
		existing, ferr := u.payments.FindByReference(ctx, repository.NoTX, in.TenantID, in.Reference)
		if ferr != nil {
			return nil, fmt.Errorf("load existing payment: %w", ferr)
		}
		return existing, domain.ErrDuplicateReference
	}
	if err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	u.log.Info().Str("payment_id", p.ID).Str("tenant_id", p.TenantID).Str("reference", p.ExternalReference).
		Str("gateway", string(p.Gateway)).Msg("payment created")
	return p, nil
}

func (u *ledgerUC) Transition(ctx context.Context, paymentID string, to model.PaymentStatus, gatewayTxID string) (*model.Payment, bool, error) {
	if !to.Valid() {
		return nil, false, domain.ErrInvalidArgument
	}

	var (
		out     *model.Payment
		changed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		out = p

		if p.Status == to {
			metrics.IncLedgerTransition("replay")
			return nil
		}
		if !model.CanTransition(p.Status, to) {
			metrics.IncLedgerTransition("invalid")
			u.log.Warn().Str("payment_id", p.ID).Str("from", string(p.Status)).Str("to", string(to)).
				Err(domain.ErrInvalidTransition).Msg("transition rejected")
			return nil
		}

		now := u.now()
		var completedAt *time.Time
		if to == model.PaymentStatusCompleted {
			completedAt = &now
		}
		var txID *string
		if gatewayTxID != "" {
			txID = &gatewayTxID
		}

		ok, err := u.payments.UpdateStatusIf(ctx, tx, p.ID, p.Status, to, txID, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			// a concurrent writer landed first
			metrics.IncLedgerTransition("race")
			reloaded, err := u.payments.FindByID(ctx, tx, paymentID)
			if err != nil {
				return err
			}
			out = reloaded
			return nil
		}

		p.Status = to
		p.UpdatedAt = now
		if completedAt != nil {
			p.CompletedAt = completedAt
		}
		if txID != nil && p.GatewayTransactionID == nil {
			p.GatewayTransactionID = txID
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		metrics.IncLedgerTransition("applied")
		metrics.IncPayment(string(to))
		if to == model.PaymentStatusCompleted {
			metrics.AddPaymentRevenue(string(out.Gateway), out.Amount)
		}
		u.log.Info().Str("payment_id", out.ID).Str("status", string(to)).Msg("payment transitioned")
	}
	return out, changed, nil
}

func (u *ledgerUC) AttachGatewayResult(ctx context.Context, paymentID string, res adapter.CreatePaymentResult) (*model.Payment, error) {
	if res.ProviderPaymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := u.payments.AttachGatewayResult(ctx, repository.NoTX, paymentID, res.ProviderPaymentID, res.Presentation, res.ExpiresAt); err != nil {
		return nil, err
	}
	// set-once: whatever landed first is what the row holds now
	return u.payments.FindByID(ctx, repository.NoTX, paymentID)
}

func (u *ledgerUC) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, paymentID)
}

func (u *ledgerUC) GetByReference(ctx context.Context, tenantID, reference string) (*model.Payment, error) {
	return u.payments.FindByReference(ctx, repository.NoTX, tenantID, reference)
}

func (u *ledgerUC) GetByGatewayTransaction(ctx context.Context, tenantID string, gateway model.Gateway, gatewayTxID string) (*model.Payment, error) {
	return u.payments.FindByGatewayTransaction(ctx, repository.NoTX, tenantID, gateway, gatewayTxID)
}
