package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, tenant_id, plan_id, buyer_external_id, amount, gateway, external_reference, gateway_transaction_id, status, description, presentation, created_at, updated_at, expires_at, completed_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p       model.Payment
		gateway string
		status  string
		pres    []byte
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.PlanID, &p.BuyerExternalID, &p.Amount, &gateway, &p.ExternalReference,
		&p.GatewayTransactionID, &status, &p.Description, &pres, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt, &p.CompletedAt); err != nil {
		return nil, scanErr(err)
	}
	p.Gateway = model.Gateway(gateway)
	p.Status = model.PaymentStatus(status)
	if len(pres) > 0 {
		p.Presentation = json.RawMessage(pres)
	}
	return &p, nil
}

func jsonbArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.TenantID, p.PlanID, p.BuyerExternalID, p.Amount, string(p.Gateway),
		p.ExternalReference, p.GatewayTransactionID, string(p.Status), p.Description, jsonbArg(p.Presentation),
		p.CreatedAt, p.UpdatedAt, p.ExpiresAt, p.CompletedAt)
	return err
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...interface{}) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `id=$1`, id)
}

func (r *paymentRepo) FindByReference(ctx context.Context, tx repository.Tx, tenantID, reference string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `tenant_id=$1 AND external_reference=$2`, tenantID, reference)
}

func (r *paymentRepo) FindByGatewayTransaction(ctx context.Context, tx repository.Tx, tenantID string, gateway model.Gateway, gatewayTxID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `tenant_id=$1 AND gateway=$2 AND gateway_transaction_id=$3 LIMIT 1`, tenantID, string(gateway), gatewayTxID)
}

// UpdateStatusIf is a compare-and-set on status. Zero affected rows means
// either the payment moved on already or it does not exist.
func (r *paymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, id string, from, to model.PaymentStatus, gatewayTxID *string, completedAt *time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = $3,
       gateway_transaction_id = COALESCE(gateway_transaction_id, $4),
       completed_at = COALESCE($5, completed_at),
       updated_at = NOW()
 WHERE id = $1
   AND status = $2`

	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), gatewayTxID, completedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if err := r.exists(ctx, tx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *paymentRepo) exists(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM payments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		return scanErr(err)
	}
	return nil
}

func (r *paymentRepo) AttachGatewayResult(ctx context.Context, tx repository.Tx, id, gatewayTxID string, presentation json.RawMessage, expiresAt *time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET gateway_transaction_id = $2,
       presentation = $3,
       expires_at = $4,
       updated_at = NOW()
 WHERE id = $1
   AND gateway_transaction_id IS NULL`

	tag, err := execSQL(ctx, r.pool, tx, q, id, gatewayTxID, jsonbArg(presentation), expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
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

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentColumns + `
  FROM payments
 WHERE status = 'pending'
   AND gateway_transaction_id IS NOT NULL
   AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *paymentRepo) ListUnsubmittedPending(ctx context.Context, tx repository.Tx, createdBefore time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentColumns + `
  FROM payments
 WHERE status = 'pending'
   AND gateway_transaction_id IS NULL
   AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	return r.list(ctx, tx, q, createdBefore, limit)
}

// ListCompletedWithoutSale finds payments whose grant never committed.
func (r *paymentRepo) ListCompletedWithoutSale(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentColumns + `
  FROM payments p
 WHERE p.status = 'completed'
   AND NOT EXISTS (SELECT 1 FROM sales s WHERE s.payment_id = p.id)
 ORDER BY p.completed_at ASC NULLS FIRST
 LIMIT $1;`
	return r.list(ctx, tx, q, limit)
}
