package postgres

import (
	"context"
	"encoding/json"
	"time"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator caches single plans and each tenant's active list.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func planKey(id string) string             { return "plan:" + id }
func tenantPlansKey(tenantID string) string { return "plans:tenant:" + tenantID }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	key := planKey(id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return plan, nil
}

// Save invalidates both the plan and its tenant's list.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	_ = d.cache.Del(ctx, planKey(plan.ID), tenantPlansKey(plan.TenantID))
	metrics.IncCacheEviction("plan")
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) ListActiveByTenant(ctx context.Context, tx repository.Tx, tenantID string) ([]*model.Plan, error) {
	key := tenantPlansKey(tenantID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListActiveByTenant(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return plans, nil
}
