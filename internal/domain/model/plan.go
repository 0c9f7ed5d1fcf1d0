package model

import (
	"time"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/domain"
)

// Plan is a purchasable offering owned by a tenant. A nil AccessDuration
// means lifetime access.
type Plan struct {
	ID             string
	TenantID       string
	Name           string
	Price          decimal.Decimal
	AccessDuration *time.Duration
	GroupID        int64 // group the buyer is invited into
	Active         bool
	CreatedAt      time.Time
}

func (p *Plan) Lifetime() bool { return p.AccessDuration == nil }

// NewPlan validates and constructs a plan. durationDays <= 0 means lifetime.
func NewPlan(id, tenantID, name string, price decimal.Decimal, durationDays int, groupID int64) (*Plan, error) {
	if id == "" || tenantID == "" || name == "" || groupID == 0 || !price.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	var d *time.Duration
	if durationDays > 0 {
		v := time.Duration(durationDays) * 24 * time.Hour
		d = &v
	}
	return &Plan{
		ID:             id,
		TenantID:       tenantID,
		Name:           name,
		Price:          price,
		AccessDuration: d,
		GroupID:        groupID,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
