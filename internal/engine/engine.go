package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

// RunFunc performs the work of one job on a pool worker. It reports
// checkpoints through r and returns the job's result payload.
type RunFunc func(ctx context.Context, r Reporter) (*model.Result, error)

// Reporter records progress checkpoints of a running job.
type Reporter interface {
	// JobID returns the id of the job being run.
	JobID() string

	// Progress records a percentage in [0, 100].
	Progress(pct float64)

	// Records records processed/total record counts together with a percentage.
	Records(processed, total int, pct float64)
}

// Notifier receives the terminal event of every job.
type Notifier interface {
	Notify(ctx context.Context, ev model.JobEvent) error
}

// Engine schedules jobs onto the worker pool and drives their lifecycle in the
// job store.
type Engine struct {
	jobs     store.JobStore
	pool     *Pool
	broker   *EventBroker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier forwards terminal job events to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine creates a new execution engine.
func NewEngine(jobs store.JobStore, pool *Pool, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		jobs:   jobs,
		pool:   pool,
		broker: NewEventBroker(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Workers returns the size of the worker pool.
func (e *Engine) Workers() int {
	return e.pool.Workers()
}

// Submit creates a queued job record and hands run to the worker pool. The
// returned snapshot is taken before any work starts.
func (e *Engine) Submit(ctx context.Context, kind model.Kind, refs model.Refs, run RunFunc) (*model.Job, error) {
	job, err := e.jobs.Create(ctx, kind, refs)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	id := job.ID
	if err := e.pool.Submit(func() { e.execute(id, kind, run) }); err != nil {
		fail := store.Update{Status: model.StatusFailed, Error: model.NewJobError(err)}
		if _, uerr := e.jobs.Update(ctx, id, fail); uerr != nil {
			e.logger.Error("failed to fail unscheduled job", "job_id", id, "error", uerr)
		}
		e.broker.Close(id)
		return nil, fmt.Errorf("schedule job: %w", err)
	}

	jobsSubmittedTotal.WithLabelValues(string(kind)).Inc()
	e.logger.Info("job submitted", "job_id", id, "kind", kind)
	return job, nil
}

// Cancel marks a queued or running job cancelled. A running worker is not
// interrupted; its eventual outcome is discarded. It reports false when the
// job had already finished.
func (e *Engine) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := e.jobs.Cancel(ctx, id)
	if err != nil || !ok {
		return ok, err
	}

	if job, err := e.jobs.Get(ctx, id); err == nil {
		e.finished(ctx, job)
	}
	e.broker.Close(id)
	e.logger.Info("job cancelled", "job_id", id)
	return true, nil
}

// Shutdown stops the pool, dropping jobs that never started.
func (e *Engine) Shutdown(ctx context.Context) error {
	dropped, err := e.pool.Shutdown(ctx)
	if dropped > 0 {
		e.logger.Warn("dropped queued jobs at shutdown", "count", dropped)
	}
	return err
}

// execute runs the job lifecycle on a worker: queued→running→completed/failed.
func (e *Engine) execute(id string, kind model.Kind, run RunFunc) {
	ctx := context.Background()
	// Close the event stream when execution finishes, regardless of outcome.
	defer e.broker.Close(id)

	job, err := e.jobs.Update(ctx, id, store.Update{Status: model.StatusRunning})
	if errors.Is(err, store.ErrInvalidTransition) {
		e.logger.Info("skipping job cancelled while queued", "job_id", id)
		return
	}
	if err != nil {
		e.logger.Error("failed to transition to running", "job_id", id, "error", err)
		return
	}
	if job == nil {
		e.logger.Warn("job vanished before start", "job_id", id)
		return
	}
	e.broker.Publish(job.Event(e.now()))

	start := time.Now()
	rep := &reporter{engine: e, ctx: ctx, id: id}
	result, err := e.safeRun(ctx, id, run, rep)

	u := store.Update{Status: model.StatusCompleted, Result: result}
	if err == nil && result == nil {
		err = errors.New("job produced no result")
	}
	if err != nil {
		u = store.Update{Status: model.StatusFailed, Error: model.NewJobError(err)}
		e.logger.Error("job failed", "job_id", id, "kind", kind, "error", err)
	}

	job, uerr := e.jobs.Update(ctx, id, u)
	if errors.Is(uerr, store.ErrInvalidTransition) {
		e.logger.Info("discarding outcome of cancelled job", "job_id", id, "outcome", u.Status)
		return
	}
	if uerr != nil {
		e.logger.Error("failed to record job outcome", "job_id", id, "error", uerr)
		return
	}
	jobDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if job != nil {
		e.finished(ctx, job)
		e.logger.Info("job finished", "job_id", id, "kind", kind, "status", job.Status,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// finished publishes the terminal event of job and forwards it to the notifier.
func (e *Engine) finished(ctx context.Context, job *model.Job) {
	jobsFinishedTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	ev := job.Event(e.now())
	e.broker.Publish(ev)
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("failed to notify job completion", "job_id", job.ID, "error", err)
	}
}

// safeRun converts a panic inside run into an error so the job fails
// instead of staying running forever.
func (e *Engine) safeRun(ctx context.Context, id string, run RunFunc, r Reporter) (result *model.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("job panicked", "job_id", id, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return run(ctx, r)
}

type reporter struct {
	engine *Engine
	ctx    context.Context
	id     string
}

func (r *reporter) JobID() string {
	return r.id
}

func (r *reporter) Progress(pct float64) {
	r.update(store.Update{Status: model.StatusRunning, Progress: &pct})
}

func (r *reporter) Records(processed, total int, pct float64) {
	r.update(store.Update{
		Status:   model.StatusRunning,
		Progress: &pct,
		Records:  &model.RecordProgress{Total: total, Processed: processed},
	})
}

// update writes a checkpoint. Checkpoints of a cancelled job are rejected by
// the store and ignored here.
func (r *reporter) update(u store.Update) {
	job, err := r.engine.jobs.Update(r.ctx, r.id, u)
	if err != nil {
		r.engine.logger.Debug("checkpoint rejected", "job_id", r.id, "error", err)
		return
	}
	if job != nil {
		r.engine.broker.Publish(job.Event(r.engine.now()))
	}
}
