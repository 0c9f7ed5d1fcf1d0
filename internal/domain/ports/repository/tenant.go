package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// TenantRepository is the port for tenant persistence.
type TenantRepository interface {
	// Save upserts by id. A duplicate credential yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, t *model.Tenant) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Tenant, error)
	FindByCredential(ctx context.Context, tx Tx, credential string) (*model.Tenant, error)
	SetActivationStatus(ctx context.Context, tx Tx, id string, status model.ActivationStatus, activatedAt *time.Time) error
	AddGroup(ctx context.Context, tx Tx, id string, groupID int64) error
}
