package repository

import (
	"context"

	"telegram-group-access/internal/domain/model"
)

// PlanRepository is read-mostly; plans belong to tenant configuration.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	ListActiveByTenant(ctx context.Context, tx Tx, tenantID string) ([]*model.Plan, error)
}
