package model

import (
	"slices"
	"time"

	"telegram-group-access/internal/domain"
)

type ActivationStatus string

const (
	ActivationSetupRequired ActivationStatus = "setup_required"
	ActivationActive        ActivationStatus = "active"
	ActivationSuspended     ActivationStatus = "suspended"
)

// Tenant is one onboarded bot. Credential is the bot token.
type Tenant struct {
	ID               string
	Credential       string
	OwnerID          int64
	Name             string
	WelcomeMessage   string
	ActivationStatus ActivationStatus
	ActivatedAt      *time.Time
	OwnedGroups      []int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTenant builds a tenant awaiting activation.
func NewTenant(id, credential string, ownerID int64, name, welcome string) (*Tenant, error) {
	if id == "" || credential == "" || ownerID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Tenant{
		ID:               id,
		Credential:       credential,
		OwnerID:          ownerID,
		Name:             name,
		WelcomeMessage:   welcome,
		ActivationStatus: ActivationSetupRequired,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AcceptsCommerce reports whether the tenant may receive buyer traffic.
func (t *Tenant) AcceptsCommerce() bool {
	return t != nil && t.ActivationStatus == ActivationActive
}

func (t *Tenant) OwnsGroup(groupID int64) bool {
	return slices.Contains(t.OwnedGroups, groupID)
}
