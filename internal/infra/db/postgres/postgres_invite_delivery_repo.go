package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.InviteDeliveryRepository = (*inviteDeliveryRepo)(nil)

type inviteDeliveryRepo struct{ pool *pgxpool.Pool }

func NewInviteDeliveryRepo(pool *pgxpool.Pool) *inviteDeliveryRepo {
	return &inviteDeliveryRepo{pool: pool}
}

const deliveryColumns = `id, sale_id, tenant_id, group_id, buyer_external_id, status, invite_link, attempts, last_error, claimed_at, sent_at, created_at`

func scanDelivery(row pgx.Row) (*model.InviteDelivery, error) {
	var (
		d      model.InviteDelivery
		status string
	)
	if err := row.Scan(&d.ID, &d.SaleID, &d.TenantID, &d.GroupID, &d.BuyerExternalID, &status, &d.InviteLink,
		&d.Attempts, &d.LastError, &d.ClaimedAt, &d.SentAt, &d.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	d.Status = model.DeliveryStatus(status)
	return &d, nil
}

func (r *inviteDeliveryRepo) Insert(ctx context.Context, tx repository.Tx, d *model.InviteDelivery) error {
	const q = `INSERT INTO invite_deliveries (` + deliveryColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.SaleID, d.TenantID, d.GroupID, d.BuyerExternalID, string(d.Status),
		d.InviteLink, d.Attempts, d.LastError, d.ClaimedAt, d.SentAt, d.CreatedAt)
	return err
}

func (r *inviteDeliveryRepo) FindBySaleID(ctx context.Context, tx repository.Tx, saleID string) (*model.InviteDelivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM invite_deliveries WHERE sale_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, saleID)
	if err != nil {
		return nil, err
	}
	return scanDelivery(row)
}

// Claim is a single conditional UPDATE, so two workers racing on the same
// sale cannot both win.
func (r *inviteDeliveryRepo) Claim(ctx context.Context, tx repository.Tx, saleID string, now, staleBefore time.Time) (*model.InviteDelivery, error) {
	const q = `
UPDATE invite_deliveries
   SET status = 'sending', claimed_at = $2
 WHERE sale_id = $1
   AND (status = 'pending' OR (status = 'sending' AND claimed_at < $3))
RETURNING ` + deliveryColumns

	row, err := pickRow(ctx, r.pool, tx, q, saleID, now, staleBefore)
	if err != nil {
		return nil, err
	}
	d, err := scanDelivery(row)
	if errors.Is(err, domain.ErrNotFound) {
		if _, ferr := r.FindBySaleID(ctx, repository.NoTX, saleID); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrDeliveryClaimed
	}
	return d, err
}

// SetLink stores the invite once; retries reuse the first link.
func (r *inviteDeliveryRepo) SetLink(ctx context.Context, tx repository.Tx, saleID, link string) error {
	const q = `UPDATE invite_deliveries SET invite_link=$2 WHERE sale_id=$1 AND invite_link='';`
	_, err := execSQL(ctx, r.pool, tx, q, saleID, link)
	return err
}

func (r *inviteDeliveryRepo) MarkSent(ctx context.Context, tx repository.Tx, saleID string, at time.Time) error {
	const q = `UPDATE invite_deliveries SET status='sent', sent_at=$2 WHERE sale_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, saleID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *inviteDeliveryRepo) Release(ctx context.Context, tx repository.Tx, saleID, lastError string) error {
	const q = `
UPDATE invite_deliveries
   SET status = 'pending', attempts = attempts + 1, last_error = $2, claimed_at = NULL
 WHERE sale_id = $1 AND status <> 'sent';`
	tag, err := execSQL(ctx, r.pool, tx, q, saleID, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *inviteDeliveryRepo) ListRetryable(ctx context.Context, tx repository.Tx, staleBefore time.Time, limit int) ([]*model.InviteDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + deliveryColumns + `
  FROM invite_deliveries
 WHERE status = 'pending' OR (status = 'sending' AND claimed_at < $1)
 ORDER BY created_at ASC
 LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.InviteDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}
