package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
)

// RunFunc does one batch and reports how many items it handled.
type RunFunc func(ctx context.Context) (int, error)

// Job runs fn every interval. With a locker, only the instance holding the
// job's lock runs a given tick.
type Job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       RunFunc
	locker   red.Locker
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewJob(name string, interval time.Duration, fn RunFunc, locker red.Locker, logger *zerolog.Logger) *Job {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Job{
		name:     name,
		interval: interval,
		timeout:  interval,
		fn:       fn,
		locker:   locker,
		log:      logger.With().Str("component", "Job").Str("job", name).Logger(),
	}
}

// Start begins the loop in a background goroutine; calling it twice has no effect.
func (j *Job) Start(parent context.Context) {
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.loop(ctx)
}

func (j *Job) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer func() {
		ticker.Stop()
		close(j.done)
	}()

	j.log.Info().Dur("interval", j.interval).Msg("job started")
	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("job stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single tick with a bounded timeout.
func (j *Job) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if j.locker != nil {
		token, err := j.locker.TryLock(runCtx, "job:"+j.name, j.timeout)
		if errors.Is(err, red.ErrLockHeld) {
			metrics.IncJobRun(j.name, "skipped")
			return
		}
		if err != nil {
			// redis down: running twice is safe, skipping forever is not
			j.log.Warn().Err(err).Msg("job lock unavailable")
		} else {
			defer func() { _ = j.locker.Unlock(context.Background(), "job:"+j.name, token) }()
		}
	}

	start := time.Now()
	n, err := j.fn(runCtx)
	metrics.AddJobItems(j.name, n)
	if err != nil {
		metrics.IncJobRun(j.name, "error")
		j.log.Error().Err(err).Int("items", n).Msg("job run failed")
		return
	}
	metrics.IncJobRun(j.name, "ok")
	if n > 0 {
		j.log.Info().Int("items", n).Dur("took", time.Since(start)).Msg("job run")
	}
}

// Stop cancels the loop and waits for the running tick to finish.
func (j *Job) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
}
