package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
)

var _ repository.TenantRepository = (*tenantRepo)(nil)

type tenantRepo struct{ pool *pgxpool.Pool }

func NewTenantRepo(pool *pgxpool.Pool) *tenantRepo {
	return &tenantRepo{pool: pool}
}

const tenantColumns = `id, credential, owner_id, name, welcome_message, activation_status, activated_at, owned_groups, created_at, updated_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var (
		t      model.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Credential, &t.OwnerID, &t.Name, &t.WelcomeMessage, &status, &t.ActivatedAt,
		&t.OwnedGroups, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	t.ActivationStatus = model.ActivationStatus(status)
	return &t, nil
}

// Save upserts by id; the credential is unique across tenants.
func (r *tenantRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tenant) error {
	const q = `
INSERT INTO tenants (` + tenantColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  credential = EXCLUDED.credential,
  owner_id = EXCLUDED.owner_id,
  name = EXCLUDED.name,
  welcome_message = EXCLUDED.welcome_message,
  activation_status = EXCLUDED.activation_status,
  activated_at = EXCLUDED.activated_at,
  owned_groups = EXCLUDED.owned_groups,
  updated_at = NOW();`

	groups := t.OwnedGroups
	if groups == nil {
		groups = []int64{}
	}
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.Credential, t.OwnerID, t.Name, t.WelcomeMessage,
		string(t.ActivationStatus), t.ActivatedAt, groups, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *tenantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTenant(row)
}

func (r *tenantRepo) FindByCredential(ctx context.Context, tx repository.Tx, credential string) (*model.Tenant, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+tenantColumns+` FROM tenants WHERE credential=$1`, credential)
	if err != nil {
		return nil, err
	}
	return scanTenant(row)
}

func (r *tenantRepo) SetActivationStatus(ctx context.Context, tx repository.Tx, id string, status model.ActivationStatus, activatedAt *time.Time) error {
	const q = `UPDATE tenants SET activation_status=$2, activated_at=COALESCE($3, activated_at), updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), activatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddGroup appends groupID to the tenant's owned groups unless already present.
func (r *tenantRepo) AddGroup(ctx context.Context, tx repository.Tx, id string, groupID int64) error {
	const q = `
UPDATE tenants
   SET owned_groups = CASE WHEN $2 = ANY(owned_groups) THEN owned_groups ELSE array_append(owned_groups, $2) END,
       updated_at = NOW()
 WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, groupID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
