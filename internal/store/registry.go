package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/model"
)

// Compile-time interface satisfaction check.
var _ JobStore = (*JobRegistry)(nil)

// JobRegistry is an in-memory JobStore. Job state does not survive a restart.
//
// Every operation holds the lock for a single read or mutate step and hands
// out copies, so a reader never observes a record mid-update.
type JobRegistry struct {
	mu          sync.RWMutex
	jobs        map[string]*model.Job
	maxRetained int
	now         func() time.Time
}

// NewJobRegistry creates an empty registry that keeps at most maxRetained
// terminal jobs, evicting the oldest finished first. maxRetained <= 0 disables
// the bound.
func NewJobRegistry(maxRetained int) *JobRegistry {
	return &JobRegistry{
		jobs:        make(map[string]*model.Job),
		maxRetained: maxRetained,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create allocates a new queued job.
func (r *JobRegistry) Create(_ context.Context, kind model.Kind, refs model.Refs) (*model.Job, error) {
	if !kind.Valid() {
		return nil, model.Validationf("unknown job kind %q", kind)
	}
	job := &model.Job{
		ID:        model.NewID(),
		Kind:      kind,
		Status:    model.StatusQueued,
		Refs:      refs,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	snapshot := job.Clone()
	r.mu.Unlock()

	return snapshot, nil
}

// Get retrieves a job by ID.
func (r *JobRegistry) Get(_ context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	snapshot := job.Clone()
	r.mu.RUnlock()
	return snapshot, nil
}

// List returns jobs ordered newest first, along with the total number of jobs
// matching the filter before pagination.
func (r *JobRegistry) List(_ context.Context, f ListFilter) ([]*model.Job, int, error) {
	r.mu.RLock()
	jobs := make([]*model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if f.Kind != "" && job.Kind != f.Kind {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	total := len(jobs)
	if f.Offset > 0 {
		if f.Offset >= len(jobs) {
			return []*model.Job{}, total, nil
		}
		jobs = jobs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(jobs) {
		jobs = jobs[:f.Limit]
	}
	return jobs, total, nil
}

// Update applies u to the job atomically and returns the updated snapshot.
// Unknown ids are a no-op returning (nil, nil), tolerating races with
// eviction. A status change not allowed by model.ValidTransition returns
// ErrInvalidTransition and leaves the record untouched; this is what keeps a
// finishing worker from overwriting a cancelled job.
func (r *JobRegistry) Update(_ context.Context, id string, u Update) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}

	target := u.Status
	if target == "" {
		target = job.Status
	}
	if !model.ValidTransition(job.Status, target) {
		return nil, fmt.Errorf("job %s %s -> %s: %w", id, job.Status, target, ErrInvalidTransition)
	}
	if u.Result != nil && target != model.StatusCompleted {
		return nil, fmt.Errorf("job %s: result requires %s status: %w", id, model.StatusCompleted, ErrInvalidTransition)
	}
	if u.Error != nil && target != model.StatusFailed {
		return nil, fmt.Errorf("job %s: error requires %s status: %w", id, model.StatusFailed, ErrInvalidTransition)
	}

	now := r.now()
	job.Status = target
	if target == model.StatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if u.Progress != nil {
		p := min(max(*u.Progress, 0), 100)
		if p > job.Progress {
			job.Progress = p
		}
	}
	if u.Records != nil {
		if job.Records == nil || u.Records.Processed >= job.Records.Processed {
			rec := *u.Records
			job.Records = &rec
		}
	}
	switch target {
	case model.StatusCompleted:
		job.Progress = 100
		job.Result = u.Result
	case model.StatusFailed:
		job.Error = u.Error
		if job.Error == nil {
			job.Error = &model.JobError{Kind: model.ErrorKindExecution, Message: "job failed"}
		}
	}
	if target.Terminal() {
		job.CompletedAt = &now
		r.pruneTerminalLocked()
	}

	return job.Clone(), nil
}

// Cancel moves a queued or running job to cancelled. It reports false for a
// job that already reached a terminal state.
func (r *JobRegistry) Cancel(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	if !model.ValidTransition(job.Status, model.StatusCancelled) {
		return false, nil
	}
	now := r.now()
	job.Status = model.StatusCancelled
	job.CompletedAt = &now
	r.pruneTerminalLocked()
	return true, nil
}

// Stats returns aggregate counts over all retained jobs.
func (r *JobRegistry) Stats(_ context.Context) (*JobStats, error) {
	stats := &JobStats{
		CountByStatus: make(map[model.Status]int),
		CountByKind:   make(map[model.Kind]int),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var durTotal float64
	var durCount int
	for _, job := range r.jobs {
		stats.Total++
		stats.CountByStatus[job.Status]++
		stats.CountByKind[job.Kind]++
		if job.StartedAt != nil && job.CompletedAt != nil {
			durTotal += float64(job.CompletedAt.Sub(*job.StartedAt).Milliseconds())
			durCount++
		}
	}
	if durCount > 0 {
		stats.AvgDurationMS = durTotal / float64(durCount)
	}
	return stats, nil
}

// Sweep removes terminal jobs that finished before the cutoff and returns
// their ids.
func (r *JobRegistry) Sweep(_ context.Context, finishedBefore time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, job := range r.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(finishedBefore) {
			delete(r.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// pruneTerminalLocked evicts the oldest finished jobs beyond maxRetained.
// Queued and running jobs are never evicted.
func (r *JobRegistry) pruneTerminalLocked() {
	if r.maxRetained <= 0 {
		return
	}

	type candidate struct {
		id         string
		finishedAt time.Time
	}
	terminal := make([]candidate, 0, len(r.jobs))
	for id, job := range r.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		terminal = append(terminal, candidate{id: id, finishedAt: *job.CompletedAt})
	}

	toRemove := len(terminal) - r.maxRetained
	if toRemove <= 0 {
		return
	}

	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].finishedAt.Equal(terminal[j].finishedAt) {
			return terminal[i].id < terminal[j].id
		}
		return terminal[i].finishedAt.Before(terminal[j].finishedAt)
	})
	for _, c := range terminal[:toRemove] {
		delete(r.jobs, c.id)
	}
}
