//go:build !integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	red "telegram-group-access/internal/infra/redis"
)

func newCacheClient(t *testing.T) (*miniredis.Miniredis, *red.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := red.NewClient(context.Background(), &config.RedisConfig{URL: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return mr, cli
}

// countingTenants is an in-memory TenantRepository that counts reads.
type countingTenants struct {
	mu    sync.Mutex
	data  map[string]*model.Tenant
	reads int
}

var _ repository.TenantRepository = (*countingTenants)(nil)

func (r *countingTenants) Save(ctx context.Context, tx repository.Tx, t *model.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.data[t.ID] = &cp
	return nil
}

func (r *countingTenants) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	t, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *countingTenants) FindByCredential(ctx context.Context, tx repository.Tx, credential string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	for _, t := range r.data {
		if t.Credential == credential {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *countingTenants) SetActivationStatus(ctx context.Context, tx repository.Tx, id string, status model.ActivationStatus, activatedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id].ActivationStatus = status
	return nil
}

func (r *countingTenants) AddGroup(ctx context.Context, tx repository.Tx, id string, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id].OwnedGroups = append(r.data[id].OwnedGroups, groupID)
	return nil
}

func (r *countingTenants) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func TestTenantRepoCache(t *testing.T) {
	ctx := context.Background()
	mr, cli := newCacheClient(t)
	inner := &countingTenants{data: map[string]*model.Tenant{}}
	tenant, _ := model.NewTenant("t1", "123:secret-token", 42, "Shop", "")
	require.NoError(t, inner.Save(ctx, nil, tenant))

	cache := NewTenantRepoCache(inner, cli, time.Minute)

	got, err := cache.FindByCredential(ctx, nil, tenant.Credential)
	require.NoError(t, err)
	require.Equal(t, "t1", got.ID)
	hit, err := cache.FindByCredential(ctx, nil, tenant.Credential)
	require.NoError(t, err)
	require.Equal(t, 1, inner.Reads(), "second lookup is a cache hit")
	require.Equal(t, tenant.Credential, hit.Credential, "hits carry the credential they were asked with")

	byID, err := cache.FindByID(ctx, nil, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, inner.Reads(), "id lookups read through")
	require.Equal(t, tenant.Credential, byID.Credential)

	require.Len(t, mr.Keys(), 2)
	for _, k := range mr.Keys() {
		require.NotContains(t, k, tenant.Credential, "credentials are hashed in keys")
		val, err := mr.Get(k)
		require.NoError(t, err)
		require.NotContains(t, val, "secret-token", "credentials are left out of cached values")
	}

	t.Run("writes evict both keys", func(t *testing.T) {
		require.NoError(t, cache.SetActivationStatus(ctx, nil, "t1", model.ActivationActive, nil))
		require.Empty(t, mr.Keys())

		got, err := cache.FindByCredential(ctx, nil, tenant.Credential)
		require.NoError(t, err)
		require.True(t, got.AcceptsCommerce())
	})

	t.Run("invalidate after commit", func(t *testing.T) {
		_, _ = cache.FindByID(ctx, nil, "t1")
		require.NotEmpty(t, mr.Keys())
		cache.Invalidate(ctx, tenant)
		require.Empty(t, mr.Keys())
	})

	t.Run("transactions bypass the cache", func(t *testing.T) {
		before := inner.Reads()
		_, _ = cache.FindByID(ctx, nil, "t1")
		_, err := cache.FindByID(ctx, struct{}{}, "t1")
		require.NoError(t, err)
		require.Equal(t, before+2, inner.Reads())
	})

	t.Run("misses are not cached", func(t *testing.T) {
		_, err := cache.FindByCredential(ctx, nil, "nope")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

type countingPlans struct {
	plans []*model.Plan
	lists int
}

func (r *countingPlans) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	r.plans = append(r.plans, p)
	return nil
}

func (r *countingPlans) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	for _, p := range r.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *countingPlans) ListActiveByTenant(ctx context.Context, tx repository.Tx, tenantID string) ([]*model.Plan, error) {
	r.lists++
	var out []*model.Plan
	for _, p := range r.plans {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestPlanRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	_, cli := newCacheClient(t)
	inner := &countingPlans{}
	cache := NewPlanRepoCacheDecorator(inner, cli, time.Minute)

	monthly, _ := model.NewPlan("p1", "t1", "Monthly", decimal.RequireFromString("19.90"), 30, -100)
	require.NoError(t, cache.Save(ctx, nil, monthly))

	first, err := cache.ListActiveByTenant(ctx, nil, "t1")
	require.NoError(t, err)
	second, err := cache.ListActiveByTenant(ctx, nil, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, inner.lists)
	require.Len(t, second, 1)
	require.True(t, first[0].Price.Equal(second[0].Price))
	require.Equal(t, *first[0].AccessDuration, *second[0].AccessDuration)

	lifetime, _ := model.NewPlan("p2", "t1", "Forever", decimal.RequireFromString("99"), 0, -100)
	require.NoError(t, cache.Save(ctx, nil, lifetime))
	all, err := cache.ListActiveByTenant(ctx, nil, "t1")
	require.NoError(t, err)
	require.Len(t, all, 2, "save invalidates the tenant list")
	require.Equal(t, 2, inner.lists)

	got, err := cache.FindByID(ctx, nil, "p2")
	require.NoError(t, err)
	require.True(t, got.Lifetime())
}
