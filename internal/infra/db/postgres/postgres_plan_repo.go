package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, tenant_id, name, price, access_duration_secs, group_id, active, created_at`

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var (
		p    model.Plan
		secs sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &secs, &p.GroupID, &p.Active, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	if secs.Valid {
		d := time.Duration(secs.Int64) * time.Second
		p.AccessDuration = &d
	}
	return &p, nil
}

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const q = `
INSERT INTO plans (` + planColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
  SET name                 = EXCLUDED.name,
      price                = EXCLUDED.price,
      access_duration_secs = EXCLUDED.access_duration_secs,
      group_id             = EXCLUDED.group_id,
      active               = EXCLUDED.active;
`
	var secs *int64
	if plan.AccessDuration != nil {
		v := int64(*plan.AccessDuration / time.Second)
		secs = &v
	}
	_, err := execSQL(ctx, r.pool, tx, q, plan.ID, plan.TenantID, plan.Name, plan.Price, secs, plan.GroupID, plan.Active, plan.CreatedAt)
	return err
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PostgresPlanRepo) ListActiveByTenant(ctx context.Context, tx repository.Tx, tenantID string) ([]*model.Plan, error) {
	const q = `SELECT ` + planColumns + ` FROM plans WHERE tenant_id = $1 AND active ORDER BY price ASC, created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}
