package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale records a completed purchase and the access window it bought.
// Exactly one Sale exists per completed Payment and it is never updated.
type Sale struct {
	ID              string
	PaymentID       string
	TenantID        string
	PlanID          string
	BuyerExternalID int64
	Amount          decimal.Decimal
	AccessExpiresAt *time.Time // nil = lifetime access
	CreatedAt       time.Time
}

// AccessExpiry returns completedAt + duration, or nil for lifetime plans.
func AccessExpiry(completedAt time.Time, duration *time.Duration) *time.Time {
	if duration == nil {
		return nil
	}
	t := completedAt.Add(*duration)
	return &t
}

// DeliveryStatus tracks the single-use invite hand-off for a Sale.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
)

// InviteDelivery is the outbox row for a grant. SaleID is its idempotency key.
type InviteDelivery struct {
	ID              string
	SaleID          string
	TenantID        string
	GroupID         int64
	BuyerExternalID int64
	Status          DeliveryStatus
	InviteLink      string // created once, reused by retries
	Attempts        int
	LastError       string
	ClaimedAt       *time.Time
	SentAt          *time.Time
	CreatedAt       time.Time
}

// AccessRevocation marks that an expired access window was enforced.
type AccessRevocation struct {
	SaleID    string
	RevokedAt time.Time
	Error     string
}
