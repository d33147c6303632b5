package model

import "time"

// Kind identifies which pipeline a job runs.
type Kind string

// Job kinds.
const (
	KindTraining        Kind = "training"
	KindBatchPrediction Kind = "batch_prediction"
	KindValidation      Kind = "validation"
)

// Kinds lists every job kind in display order.
var Kinds = []Kind{KindTraining, KindBatchPrediction, KindValidation}

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTraining, KindBatchPrediction, KindValidation:
		return true
	}
	return false
}

// Status is the lifecycle state of a job.
type Status string

// Job status constants.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions maps each status to the set of statuses it may transition to.
// running -> running is a progress checkpoint.
var validTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// RecordProgress tracks how many dataset records a batch job has processed.
type RecordProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

// JobError describes why a job failed.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Refs names the model and dataset a job operates on. Either may be empty.
type Refs struct {
	ModelID   string `json:"model_id,omitempty"`
	DatasetID string `json:"dataset_id,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
}

// Job is a single asynchronous unit of work tracked by the job store.
//
// Progress is meaningful only while running and frozen once terminal.
// Result is set if and only if Status is completed; Error only when failed.
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Status      Status          `json:"status"`
	Progress    float64         `json:"progress"`
	Refs        Refs            `json:"refs"`
	Records     *RecordProgress `json:"records,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a copy of j that shares no mutable bookkeeping with it.
// Result payloads are written once on completion and never mutated, so they
// are shared.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Records != nil {
		r := *j.Records
		c.Records = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// JobEvent is published whenever a job's status or progress changes.
type JobEvent struct {
	JobID    string          `json:"job_id"`
	Kind     Kind            `json:"kind"`
	Status   Status          `json:"status"`
	Progress float64         `json:"progress"`
	Records  *RecordProgress `json:"records,omitempty"`
	Error    *JobError       `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

// Event returns the event describing j's current state.
func (j *Job) Event(at time.Time) JobEvent {
	c := j.Clone()
	return JobEvent{
		JobID:    c.ID,
		Kind:     c.Kind,
		Status:   c.Status,
		Progress: c.Progress,
		Records:  c.Records,
		Error:    c.Error,
		At:       at,
	}
}
