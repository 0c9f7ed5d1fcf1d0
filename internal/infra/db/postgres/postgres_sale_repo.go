package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.SaleRepository = (*saleRepo)(nil)

type saleRepo struct{ pool *pgxpool.Pool }

func NewSaleRepo(pool *pgxpool.Pool) *saleRepo {
	return &saleRepo{pool: pool}
}

const saleColumns = `id, payment_id, tenant_id, plan_id, buyer_external_id, amount, access_expires_at, created_at`

func scanSale(row pgx.Row) (*model.Sale, error) {
	var s model.Sale
	if err := row.Scan(&s.ID, &s.PaymentID, &s.TenantID, &s.PlanID, &s.BuyerExternalID, &s.Amount, &s.AccessExpiresAt, &s.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &s, nil
}

// Insert relies on UNIQUE(payment_id); a second grant for the same payment
// surfaces as domain.ErrAlreadyExists.
func (r *saleRepo) Insert(ctx context.Context, tx repository.Tx, s *model.Sale) error {
	const q = `INSERT INTO sales (` + saleColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.PaymentID, s.TenantID, s.PlanID, s.BuyerExternalID, s.Amount, s.AccessExpiresAt, s.CreatedAt)
	return err
}

func (r *saleRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Sale, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+saleColumns+` FROM sales WHERE payment_id=$1`, paymentID)
	if err != nil {
		return nil, err
	}
	return scanSale(row)
}

func (r *saleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Sale, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return scanSale(row)
}

func (r *saleRepo) ListExpiredUnrevoked(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Sale, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + saleColumns + `
  FROM sales s
 WHERE s.access_expires_at IS NOT NULL
   AND s.access_expires_at <= $1
   AND NOT EXISTS (SELECT 1 FROM access_revocations r WHERE r.sale_id = s.id)
 ORDER BY s.access_expires_at ASC
 LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// SaveRevocation is idempotent per sale.
func (r *saleRepo) SaveRevocation(ctx context.Context, tx repository.Tx, rev *model.AccessRevocation) error {
	const q = `
INSERT INTO access_revocations (sale_id, revoked_at, error) VALUES ($1,$2,$3)
ON CONFLICT (sale_id) DO UPDATE SET revoked_at = EXCLUDED.revoked_at, error = EXCLUDED.error;`
	_, err := execSQL(ctx, r.pool, tx, q, rev.SaleID, rev.RevokedAt, rev.Error)
	return err
}
