package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.ActivationCodeRepository = (*activationCodeRepo)(nil)

type activationCodeRepo struct {
	pool *pgxpool.Pool
}

func NewActivationCodeRepo(pool *pgxpool.Pool) repository.ActivationCodeRepository {
	return &activationCodeRepo{pool: pool}
}

// Insert issues a new code and voids the tenant's earlier unused ones in the
// same statement, so at most one live code exists per tenant.
func (r *activationCodeRepo) Insert(ctx context.Context, tx repository.Tx, code *model.ActivationCode) error {
	const q = `
WITH voided AS (
  DELETE FROM activation_codes WHERE tenant_id = $2 AND used_at IS NULL
)
INSERT INTO activation_codes (code, tenant_id, created_at, expires_at, used_at, used_by)
VALUES ($1, $2, $3, $4, NULL, NULL);
`
	_, err := execSQL(ctx, r.pool, tx, q, code.Code, code.TenantID, code.CreatedAt, code.ExpiresAt)
	return err
}

// FindByCode returns the code whatever its state; the caller decides why it
// cannot be redeemed.
func (r *activationCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	q := `
SELECT code, tenant_id, created_at, expires_at, used_at, used_by
  FROM activation_codes
 WHERE code = $1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}

	var ac model.ActivationCode
	if err := row.Scan(&ac.Code, &ac.TenantID, &ac.CreatedAt, &ac.ExpiresAt, &ac.UsedAt, &ac.UsedBy); err != nil {
		return nil, scanErr(err)
	}
	return &ac, nil
}

func (r *activationCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, usedBy int64, now time.Time) (bool, error) {
	const q = `
UPDATE activation_codes
   SET used_at = $3, used_by = $2
 WHERE code = $1 AND used_at IS NULL AND expires_at > $3;`
	tag, err := execSQL(ctx, r.pool, tx, q, code, usedBy, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
