package model

import (
	"time"

	"telegram-group-access/internal/domain"
)

// ActivationCode binds a tenant to its owner. It is redeemable once, before ExpiresAt.
type ActivationCode struct {
	Code      string // XXXX-XXXX
	TenantID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    *int64
}

// Check returns nil when the code is redeemable at now, or the matching RedemptionError.
func (c *ActivationCode) Check(now time.Time) error {
	if c.UsedAt != nil {
		return &domain.RedemptionError{Reason: domain.RedemptionAlreadyUsed}
	}
	if !now.Before(c.ExpiresAt) {
		return &domain.RedemptionError{Reason: domain.RedemptionExpired}
	}
	return nil
}
