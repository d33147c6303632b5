package store

import (
	"context"
	"time"

	"github.com/seantiz/crucible/internal/model"
)

// ErrNotFound is returned when a job or model is not found.
var ErrNotFound = model.ErrNotFound

// ErrInvalidTransition is returned when a job status transition is not allowed.
var ErrInvalidTransition = model.ErrInvalidTransition

// ListFilter narrows and paginates a job listing. A zero Limit means no limit.
type ListFilter struct {
	Kind   model.Kind
	Limit  int
	Offset int
}

// Update describes a mutation of a single job record. Nil fields are left untouched.
type Update struct {
	Status   model.Status
	Progress *float64
	Records  *model.RecordProgress
	Error    *model.JobError
	Result   *model.Result
}

// JobStats holds aggregate job counts.
type JobStats struct {
	Total         int                  `json:"total"`
	CountByStatus map[model.Status]int `json:"count_by_status"`
	CountByKind   map[model.Kind]int   `json:"count_by_kind"`
	AvgDurationMS float64              `json:"avg_duration_ms"`
}

// JobStore is the single source of truth for job status, progress and results.
type JobStore interface {
	Create(ctx context.Context, kind model.Kind, refs model.Refs) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, f ListFilter) ([]*model.Job, int, error)
	Update(ctx context.Context, id string, u Update) (*model.Job, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*JobStats, error)
	Sweep(ctx context.Context, finishedBefore time.Time) ([]string, error)
}

// ModelStore persists fitted models.
type ModelStore interface {
	SaveModel(ctx context.Context, m *model.ModelRecord) error
	GetModel(ctx context.Context, id string) (*model.ModelRecord, error)
	ModelExists(ctx context.Context, id string) (bool, error)
	ListModels(ctx context.Context) ([]*model.ModelRecord, error)
	DeleteModel(ctx context.Context, id string) error
	Close() error
}
