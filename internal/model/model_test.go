package model

import (
	"errors"
	"fmt"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestNewModelIDFormat(t *testing.T) {
	id := NewModelID()
	if len(id) != 36 {
		t.Errorf("NewModelID() = %q, want 36-char UUID", id)
	}
	if id == NewModelID() {
		t.Error("NewModelID() returned the same id twice")
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusQueued, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusCancelled, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range Statuses {
		want := s == StatusCompleted || s == StatusFailed || s == StatusCancelled
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{NotFoundf("dataset %q", "ds1"), ErrorKindNotFound},
		{fmt.Errorf("load: %w", NotFoundf("model")), ErrorKindNotFound},
		{Validationf("bad"), ErrorKindValidation},
		{errors.New("singular matrix"), ErrorKindExecution},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	j := &Job{ID: "a", Status: StatusRunning, Records: &RecordProgress{Total: 10, Processed: 2}}
	c := j.Clone()
	c.Records.Processed = 5
	c.Status = StatusCompleted
	if j.Records.Processed != 2 || j.Status != StatusRunning {
		t.Errorf("mutating clone changed original: %+v", j)
	}
}

func TestTrainingSpecValidate(t *testing.T) {
	valid := func() TrainingSpec {
		s := TrainingSpec{DatasetID: "ds", Algorithm: "linear_regression", TargetColumn: "y", FeatureColumns: []string{"a"}}
		s.ApplyDefaults()
		return s
	}

	tests := []struct {
		name   string
		mutate func(*TrainingSpec)
		ok     bool
	}{
		{"valid", func(*TrainingSpec) {}, true},
		{"no dataset", func(s *TrainingSpec) { s.DatasetID = "" }, false},
		{"no features", func(s *TrainingSpec) { s.FeatureColumns = nil }, false},
		{"target as feature", func(s *TrainingSpec) { s.FeatureColumns = []string{"y"} }, false},
		{"test size too large", func(s *TrainingSpec) { s.TestSize = 1 }, false},
	}
	for _, tt := range tests {
		s := valid()
		tt.mutate(&s)
		err := s.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Errorf("%s: error %v does not wrap ErrValidation", tt.name, err)
		}
	}
}

func TestTrainingSpecDefaults(t *testing.T) {
	var s TrainingSpec
	s.ApplyDefaults()
	if s.TestSize != DefaultTestSize {
		t.Errorf("TestSize = %v, want %v", s.TestSize, DefaultTestSize)
	}
	if s.Seed() != DefaultRandomState {
		t.Errorf("Seed() = %d, want %d", s.Seed(), DefaultRandomState)
	}
}

func TestPredictionSpecDefaults(t *testing.T) {
	s := PredictionSpec{ModelID: "m", DatasetID: "d"}
	s.ApplyDefaults(500)
	if s.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", s.ChunkSize)
	}
	if s.OutputFormat != FormatJSON {
		t.Errorf("OutputFormat = %q, want %q", s.OutputFormat, FormatJSON)
	}
	s.OutputFormat = "parquet"
	if err := s.Validate(); err == nil {
		t.Error("Validate() accepted unsupported format")
	}
}

func TestValidationSpecDefaults(t *testing.T) {
	s := ValidationSpec{ModelID: "m", DatasetID: "d"}
	s.ApplyDefaults()
	if s.Mode != ModeCrossValidation || s.Folds != DefaultFolds {
		t.Errorf("defaults = %q/%d, want %q/%d", s.Mode, s.Folds, ModeCrossValidation, DefaultFolds)
	}
	if len(s.Metrics) != len(DefaultValidationMetrics) {
		t.Errorf("Metrics = %v, want %v", s.Metrics, DefaultValidationMetrics)
	}
	s.Folds = 1
	if err := s.Validate(); err == nil {
		t.Error("Validate() accepted a single fold")
	}
}

func TestModelRecordLabels(t *testing.T) {
	m := &ModelRecord{Classes: []string{"high", "low", "mid"}}
	got := m.Labels([]float64{1, 0, 2, 3, 0.5})
	want := []string{"low", "high", "mid", "3", "0.5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Labels() = %v, want %v", got, want)
	}

	if got := (&ModelRecord{}).Labels([]float64{1}); got != nil {
		t.Errorf("Labels() without classes = %v, want nil", got)
	}
}
