package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seantiz/crucible/internal/store"
)

// DefaultSweepSchedule runs the retention sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// Retention periodically removes terminal jobs older than a TTL.
type Retention struct {
	cron   *cron.Cron
	jobs   store.JobStore
	broker *EventBroker
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRetention schedules sweeps of jobs finished more than ttl ago. schedule
// is a cron spec or descriptor such as "@every 5m".
func NewRetention(jobs store.JobStore, broker *EventBroker, ttl time.Duration, schedule string, logger *slog.Logger) (*Retention, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("retention ttl must be positive, got %s", ttl)
	}
	r := &Retention{
		cron:   cron.New(),
		jobs:   jobs,
		broker: broker,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.logger.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep until ctx is done.
func (r *Retention) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep removes expired terminal jobs now and returns how many were removed.
// It also forgets the closed event topics of jobs the store no longer holds,
// which covers jobs evicted by the store's own retention cap.
func (r *Retention) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl)
	removed, err := r.jobs.Sweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range removed {
		r.broker.Forget(id)
	}
	n := len(removed)
	if n > 0 {
		r.logger.Info("swept expired jobs", "count", n, "cutoff", cutoff)
	}

	orphans, err := r.forgetOrphans(ctx)
	if err != nil {
		return n, err
	}
	if orphans > 0 {
		r.logger.Info("forgot event topics of evicted jobs", "count", orphans)
	}
	return n, nil
}

func (r *Retention) forgetOrphans(ctx context.Context) (int, error) {
	var n int
	for _, id := range r.broker.ClosedTopics() {
		_, err := r.jobs.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.broker.Forget(id)
			n++
			continue
		}
		if err != nil {
			return n, fmt.Errorf("check job %s: %w", id, err)
		}
	}
	return n, nil
}
