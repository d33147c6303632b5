package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/crucible/internal/model"
)

func ptr[T any](v T) *T { return &v }

func createJob(t *testing.T, r *JobRegistry, kind model.Kind) *model.Job {
	t.Helper()
	job, err := r.Create(context.Background(), kind, model.Refs{DatasetID: "ds1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestCreateAndGetJob(t *testing.T) {
	r := NewJobRegistry(0)
	job := createJob(t, r, model.KindTraining)

	if job.Status != model.StatusQueued {
		t.Errorf("Status = %q, want queued", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("Progress = %v, want 0", job.Progress)
	}

	got, err := r.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != job.ID || got.Kind != model.KindTraining || got.Refs.DatasetID != "ds1" {
		t.Errorf("Get = %+v, want %+v", got, job)
	}
}

func TestCreateUnknownKind(t *testing.T) {
	r := NewJobRegistry(0)
	if _, err := r.Create(context.Background(), "mystery", model.Refs{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Create error = %v, want ErrValidation", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	r := NewJobRegistry(0)
	if _, err := r.Get(context.Background(), "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestUpdateUnknownJobIsNoop(t *testing.T) {
	r := NewJobRegistry(0)
	job, err := r.Update(context.Background(), "nonexistent", Update{Status: model.StatusRunning})
	if err != nil || job != nil {
		t.Errorf("Update unknown = %v, %v; want nil, nil", job, err)
	}
}

func TestUpdateLifecycle(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindTraining)

	running, err := r.Update(ctx, job.ID, Update{Status: model.StatusRunning, Progress: ptr(10.0)})
	if err != nil {
		t.Fatalf("queued->running: %v", err)
	}
	if running.StartedAt == nil {
		t.Error("StartedAt not set on running")
	}
	if running.Progress != 10 {
		t.Errorf("Progress = %v, want 10", running.Progress)
	}

	result := &model.Result{Training: &model.TrainingResult{ModelID: "m1"}}
	done, err := r.Update(ctx, job.ID, Update{Status: model.StatusCompleted, Result: result})
	if err != nil {
		t.Fatalf("running->completed: %v", err)
	}
	if done.Progress != 100 {
		t.Errorf("Progress = %v, want 100", done.Progress)
	}
	if done.Result == nil || done.Result.Training.ModelID != "m1" {
		t.Errorf("Result = %+v, want training result", done.Result)
	}
	if done.CompletedAt == nil || done.CompletedAt.Before(*done.StartedAt) {
		t.Errorf("CompletedAt = %v, want >= StartedAt %v", done.CompletedAt, done.StartedAt)
	}
	if done.Error != nil {
		t.Errorf("Error = %+v, want nil", done.Error)
	}

	if _, err := r.Update(ctx, job.ID, Update{Status: model.StatusFailed}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed->failed error = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateProgressMonotonic(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindBatchPrediction)

	if _, err := r.Update(ctx, job.ID, Update{Progress: ptr(5.0)}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("progress on queued job error = %v, want ErrInvalidTransition", err)
	}

	r.Update(ctx, job.ID, Update{Status: model.StatusRunning, Progress: ptr(50.0)})
	got, err := r.Update(ctx, job.ID, Update{Progress: ptr(20.0)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Progress != 50 {
		t.Errorf("Progress = %v, want 50 (never decreases)", got.Progress)
	}

	got, _ = r.Update(ctx, job.ID, Update{Progress: ptr(150.0)})
	if got.Progress != 100 {
		t.Errorf("Progress = %v, want clamped 100", got.Progress)
	}
}

func TestUpdateRecordsNeverRegress(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindBatchPrediction)
	r.Update(ctx, job.ID, Update{Status: model.StatusRunning})

	r.Update(ctx, job.ID, Update{Records: &model.RecordProgress{Total: 10, Processed: 6}})
	got, _ := r.Update(ctx, job.ID, Update{Records: &model.RecordProgress{Total: 10, Processed: 3}})
	if got.Records.Processed != 6 {
		t.Errorf("Processed = %d, want 6", got.Records.Processed)
	}
}

func TestUpdateFailedRecordsError(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindValidation)
	r.Update(ctx, job.ID, Update{Status: model.StatusRunning, Progress: ptr(30.0)})

	got, err := r.Update(ctx, job.ID, Update{
		Status: model.StatusFailed,
		Error:  &model.JobError{Kind: model.ErrorKindExecution, Message: "boom"},
	})
	if err != nil {
		t.Fatalf("running->failed: %v", err)
	}
	if got.Error == nil || got.Error.Message != "boom" {
		t.Errorf("Error = %+v, want boom", got.Error)
	}
	if got.Result != nil {
		t.Error("failed job carries a result")
	}
	if got.Progress != 30 {
		t.Errorf("Progress = %v, want frozen at 30", got.Progress)
	}
}

func TestUpdateRejectsMismatchedPayload(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindTraining)
	r.Update(ctx, job.ID, Update{Status: model.StatusRunning})

	_, err := r.Update(ctx, job.ID, Update{Result: &model.Result{}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("result without completed error = %v, want ErrInvalidTransition", err)
	}
	_, err = r.Update(ctx, job.ID, Update{Status: model.StatusCompleted, Error: &model.JobError{}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error with completed = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()

	queued := createJob(t, r, model.KindTraining)
	ok, err := r.Cancel(ctx, queued.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel queued = %v, %v; want true, nil", ok, err)
	}
	got, _ := r.Get(ctx, queued.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}

	// A worker finishing after cancellation must not overwrite the status.
	if _, err := r.Update(ctx, queued.ID, Update{Status: model.StatusCompleted, Result: &model.Result{}}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completing cancelled job error = %v, want ErrInvalidTransition", err)
	}
	got, _ = r.Get(ctx, queued.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("Status after late completion = %q, want cancelled", got.Status)
	}

	done := createJob(t, r, model.KindTraining)
	r.Update(ctx, done.ID, Update{Status: model.StatusRunning})
	r.Update(ctx, done.ID, Update{Status: model.StatusCompleted, Result: &model.Result{}})
	ok, err = r.Cancel(ctx, done.ID)
	if err != nil || ok {
		t.Errorf("Cancel completed = %v, %v; want false, nil", ok, err)
	}

	if _, err := r.Cancel(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel unknown error = %v, want ErrNotFound", err)
	}
}

func TestListFilterAndPagination(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	r.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	for range 3 {
		createJob(t, r, model.KindTraining)
	}
	for range 2 {
		createJob(t, r, model.KindValidation)
	}

	all, total, err := r.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(all) != 5 {
		t.Errorf("List all = %d/%d, want 5/5", len(all), total)
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Errorf("jobs not in DESC order at %d", i)
		}
	}

	training, total, _ := r.List(ctx, ListFilter{Kind: model.KindTraining})
	if total != 3 || len(training) != 3 {
		t.Errorf("List training = %d/%d, want 3/3", len(training), total)
	}

	page, total, _ := r.List(ctx, ListFilter{Limit: 2, Offset: 4})
	if total != 5 || len(page) != 1 {
		t.Errorf("List page = %d/%d, want 1/5", len(page), total)
	}

	empty, _, _ := r.List(ctx, ListFilter{Offset: 10})
	if len(empty) != 0 {
		t.Errorf("List past end = %d, want 0", len(empty))
	}
}

func TestRetentionBound(t *testing.T) {
	r := NewJobRegistry(2)
	ctx := context.Background()

	active := createJob(t, r, model.KindTraining)
	r.Update(ctx, active.ID, Update{Status: model.StatusRunning})

	var finished []string
	for range 4 {
		job := createJob(t, r, model.KindTraining)
		r.Cancel(ctx, job.ID)
		finished = append(finished, job.ID)
	}

	if _, err := r.Get(ctx, active.ID); err != nil {
		t.Errorf("running job evicted: %v", err)
	}
	_, total, _ := r.List(ctx, ListFilter{})
	if total != 3 {
		t.Errorf("retained jobs = %d, want 3 (1 running + 2 terminal)", total)
	}
	if _, err := r.Get(ctx, finished[3]); err != nil {
		t.Errorf("newest terminal job evicted: %v", err)
	}
}

func TestSweep(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return old }

	stale := createJob(t, r, model.KindTraining)
	r.Cancel(ctx, stale.ID)
	queued := createJob(t, r, model.KindTraining)

	removed, err := r.Sweep(ctx, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 1 || removed[0] != stale.ID {
		t.Errorf("removed = %v, want [%s]", removed, stale.ID)
	}
	if _, err := r.Get(ctx, queued.ID); err != nil {
		t.Errorf("queued job swept: %v", err)
	}
}

func TestStats(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()

	a := createJob(t, r, model.KindTraining)
	r.Update(ctx, a.ID, Update{Status: model.StatusRunning})
	r.Update(ctx, a.ID, Update{Status: model.StatusCompleted, Result: &model.Result{}})
	createJob(t, r, model.KindBatchPrediction)

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 1 || stats.CountByStatus[model.StatusQueued] != 1 {
		t.Errorf("CountByStatus = %v", stats.CountByStatus)
	}
	if stats.CountByKind[model.KindTraining] != 1 {
		t.Errorf("CountByKind = %v", stats.CountByKind)
	}
}

func TestConcurrentReadersSeeConsistentRecords(t *testing.T) {
	r := NewJobRegistry(0)
	ctx := context.Background()
	job := createJob(t, r, model.KindBatchPrediction)
	r.Update(ctx, job.ID, Update{Status: model.StatusRunning})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			p := float64(i)
			r.Update(ctx, job.ID, Update{Progress: &p, Records: &model.RecordProgress{Total: 100, Processed: i}})
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1.0
			for range 200 {
				got, err := r.Get(ctx, job.ID)
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				if got.Progress < last {
					t.Errorf("progress decreased: %v -> %v", last, got.Progress)
				}
				if got.Records != nil && float64(got.Records.Processed) != got.Progress {
					t.Errorf("torn read: processed %d, progress %v", got.Records.Processed, got.Progress)
				}
				last = got.Progress
			}
		}()
	}
	wg.Wait()
}
