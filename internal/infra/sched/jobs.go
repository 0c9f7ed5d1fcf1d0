package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/infra/db/postgres"
	red "telegram-group-access/internal/infra/redis"
	"telegram-group-access/internal/usecase"
)

// Job names, also used as lock keys and metric labels.
const (
	JobPaymentReconcile = "payment_reconcile"
	JobGrantRecovery    = "grant_recovery"
	JobAccessExpiry     = "access_expiry"
	JobDBPoolStats      = "db_pool_stats"
)

// NewPaymentReconciler polls the gateway for pending payments older than
// staleAfter; it covers lost webhooks.
func NewPaymentReconciler(uc usecase.ReconcileUseCase, cfg config.SchedulerConfig, locker red.Locker, logger *zerolog.Logger) *Job {
	return NewJob(JobPaymentReconcile, cfg.ReconcileInterval, func(ctx context.Context) (int, error) {
		return uc.ReconcileStale(ctx, cfg.StaleAfter, cfg.BatchSize)
	}, locker, logger)
}

// NewGrantRecovery grants completed payments that have no sale and retries
// invite deliveries that were never sent.
func NewGrantRecovery(uc usecase.GrantUseCase, cfg config.SchedulerConfig, locker red.Locker, logger *zerolog.Logger) *Job {
	return NewJob(JobGrantRecovery, cfg.RecoveryInterval, func(ctx context.Context) (int, error) {
		granted, err := uc.RecoverMissingSales(ctx, cfg.BatchSize)
		if err != nil {
			return granted, err
		}
		retried, err := uc.RetryDeliveries(ctx, cfg.BatchSize)
		return granted + retried, err
	}, locker, logger)
}

// NewAccessExpiryWorker removes buyers whose plan duration has elapsed.
func NewAccessExpiryWorker(uc usecase.GrantUseCase, cfg config.SchedulerConfig, locker red.Locker, logger *zerolog.Logger) *Job {
	return NewJob(JobAccessExpiry, cfg.ExpiryInterval, func(ctx context.Context) (int, error) {
		return uc.RevokeExpired(ctx, cfg.BatchSize)
	}, locker, logger)
}

// NewPoolStatsReporter publishes connection pool gauges on every instance.
func NewPoolStatsReporter(pool *pgxpool.Pool, logger *zerolog.Logger) *Job {
	return NewJob(JobDBPoolStats, 15*time.Second, func(ctx context.Context) (int, error) {
		postgres.ReportPoolStats(pool)
		return 0, nil
	}, nil, logger)
}
