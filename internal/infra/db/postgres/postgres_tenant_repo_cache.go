package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
)

var _ repository.TenantRepository = (*TenantRepoCache)(nil)

// TenantRepoCache fronts credential lookups, which run on every Telegram
// update. The credential never reaches Redis: keys carry its hash and values
// are stored without it.
//
//	tenant:cred:<sha256> -> tenant JSON, credential blanked
//	tenant:id:<id>       -> the tenant:cred key, used for eviction
type TenantRepoCache struct {
	inner repository.TenantRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewTenantRepoCache(inner repository.TenantRepository, cache red.RedisClient, ttl time.Duration) *TenantRepoCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TenantRepoCache{inner: inner, cache: cache, ttl: ttl}
}

func tenantIDKey(id string) string { return "tenant:id:" + id }

func tenantCredKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "tenant:cred:" + hex.EncodeToString(sum[:])
}

// lookup re-attaches the credential the caller asked with.
func (c *TenantRepoCache) lookup(ctx context.Context, credential string) *model.Tenant {
	val, err := c.cache.Get(ctx, tenantCredKey(credential))
	if err != nil {
		return nil
	}
	var t model.Tenant
	if json.Unmarshal([]byte(val), &t) != nil {
		return nil
	}
	t.Credential = credential
	return &t
}

func (c *TenantRepoCache) store(ctx context.Context, t *model.Tenant) {
	cp := *t
	cp.Credential = ""
	b, err := json.Marshal(&cp)
	if err != nil {
		return
	}
	credKey := tenantCredKey(t.Credential)
	_ = c.cache.Set(ctx, credKey, b, c.ttl)
	_ = c.cache.Set(ctx, tenantIDKey(t.ID), credKey, c.ttl)
}

// FindByID reads through: an id alone cannot restore the credential, and
// callers of this path send messages with it. The result warms the
// credential key.
func (c *TenantRepoCache) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tenant, error) {
	t, err := c.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		c.store(ctx, t)
	}
	return t, nil
}

func (c *TenantRepoCache) FindByCredential(ctx context.Context, tx repository.Tx, credential string) (*model.Tenant, error) {
	if tx == nil {
		if t := c.lookup(ctx, credential); t != nil {
			metrics.IncCacheRequest("tenant", "hit")
			return t, nil
		}
		metrics.IncCacheRequest("tenant", "miss")
	}
	t, err := c.inner.FindByCredential(ctx, tx, credential)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		c.store(ctx, t)
	}
	return t, nil
}

func (c *TenantRepoCache) Save(ctx context.Context, tx repository.Tx, t *model.Tenant) error {
	c.evictByID(ctx, t.ID)
	_ = c.cache.Del(ctx, tenantCredKey(t.Credential))
	return c.inner.Save(ctx, tx, t)
}

func (c *TenantRepoCache) SetActivationStatus(ctx context.Context, tx repository.Tx, id string, status model.ActivationStatus, activatedAt *time.Time) error {
	c.evictByID(ctx, id)
	return c.inner.SetActivationStatus(ctx, tx, id, status, activatedAt)
}

func (c *TenantRepoCache) AddGroup(ctx context.Context, tx repository.Tx, id string, groupID int64) error {
	c.evictByID(ctx, id)
	return c.inner.AddGroup(ctx, tx, id, groupID)
}

// Invalidate drops both keys of t. Writers inside a transaction call it again
// after commit so a concurrent reader cannot re-cache the old row.
func (c *TenantRepoCache) Invalidate(ctx context.Context, t *model.Tenant) {
	if t == nil {
		return
	}
	c.evictByID(ctx, t.ID)
	if t.Credential != "" {
		_ = c.cache.Del(ctx, tenantCredKey(t.Credential))
	}
}

// evictByID follows the id entry to the credential key it points at.
func (c *TenantRepoCache) evictByID(ctx context.Context, id string) {
	if credKey, err := c.cache.Get(ctx, tenantIDKey(id)); err == nil && credKey != "" {
		_ = c.cache.Del(ctx, credKey)
	}
	_ = c.cache.Del(ctx, tenantIDKey(id))
	metrics.IncCacheEviction("tenant")
}
