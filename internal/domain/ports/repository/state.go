package repository

import (
	"context"
)

// ConversationState holds the buyer's position in the purchase flow.
type ConversationState struct {
	Step string            `json:"step"` // see telegram.Step* constants
	Data map[string]string `json:"data"` // collected values, e.g. plan_id, payment_id
}

// StateRepository stores conversation state per (tenant, user). GetState
// returns nil when no flow is in progress.
type StateRepository interface {
	SetState(ctx context.Context, tenantID string, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tenantID string, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tenantID string, tgID int64) error
}
