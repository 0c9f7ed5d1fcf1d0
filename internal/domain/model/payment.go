package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
)

// PaymentStatus is the normalized payment state shared by every gateway.
// Provider vocabularies are mapped onto it inside the gateway adapters.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Rank orders statuses by progress: pending < completed|failed < refunded.
func (s PaymentStatus) Rank() int {
	switch s {
	case PaymentStatusPending:
		return 0
	case PaymentStatusCompleted, PaymentStatusFailed:
		return 1
	case PaymentStatusRefunded:
		return 2
	}
	return -1
}

// Terminal reports whether no further transition can leave s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// CanTransition reports whether from -> to is an edge of the payment state machine:
// pending -> completed, pending -> failed, completed -> refunded.
func CanTransition(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed
	case PaymentStatusCompleted:
		return to == PaymentStatusRefunded
	}
	return false
}

// Gateway identifies a payment provider.
type Gateway string

const (
	GatewayPushinPay   Gateway = "pushinpay"
	GatewayMercadoPago Gateway = "mercadopago"
	GatewaySandbox     Gateway = "sandbox"
)

// Payment is one purchase attempt. It is never deleted; only the
// reconciliation path moves its status forward.
type Payment struct {
	ID                   string
	TenantID             string
	PlanID               string
	BuyerExternalID      int64
	Amount               decimal.Decimal
	Gateway              Gateway
	ExternalReference    string  // idempotency token, unique per tenant
	GatewayTransactionID *string // nil until the gateway answers
	Status               PaymentStatus
	Description          string
	Presentation         json.RawMessage // opaque gateway data (QR payload, redirect URL)
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ExpiresAt            *time.Time // when the payment offer lapses
	CompletedAt          *time.Time
}

// NewPayment validates input and builds a pending payment.
func NewPayment(id, tenantID, planID string, buyer int64, amount decimal.Decimal, gateway Gateway, reference, description string) (*Payment, error) {
	if id == "" || tenantID == "" || planID == "" || buyer == 0 || reference == "" || gateway == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Payment{
		ID:                id,
		TenantID:          tenantID,
		PlanID:            planID,
		BuyerExternalID:   buyer,
		Amount:            amount,
		Gateway:           gateway,
		ExternalReference: reference,
		Status:            PaymentStatusPending,
		Description:       description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// GatewayTxID returns the provider payment id or "" when unset.
func (p *Payment) GatewayTxID() string {
	if p == nil || p.GatewayTransactionID == nil {
		return ""
	}
	return *p.GatewayTransactionID
}

// AmountCents converts the amount to integer minor units, as PIX gateways expect.
func AmountCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
