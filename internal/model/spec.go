package model

import "slices"

// Defaults applied to job specs that leave a field unset.
const (
	DefaultTestSize    = 0.2
	DefaultRandomState = 42
	DefaultChunkSize   = 1000
	DefaultFolds       = 5
)

// Output representations understood by the result sink.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Validation modes.
const (
	ModeCrossValidation = "cross_validation"
	ModeHoldout         = "holdout"
)

// DefaultValidationMetrics is used when a validation spec names no metrics.
var DefaultValidationMetrics = []string{"accuracy", "precision", "recall", "f1_score"}

// TrainingSpec configures a training job.
type TrainingSpec struct {
	DatasetID       string         `json:"dataset_id" yaml:"dataset_id"`
	Algorithm       string         `json:"algorithm" yaml:"algorithm"`
	TargetColumn    string         `json:"target_column" yaml:"target_column"`
	FeatureColumns  []string       `json:"feature_columns" yaml:"feature_columns"`
	TestSize        float64        `json:"test_size" yaml:"test_size"`
	RandomState     *int64         `json:"random_state,omitempty" yaml:"random_state,omitempty"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty" yaml:"hyperparameters,omitempty"`
}

// ApplyDefaults fills unset fields.
func (s *TrainingSpec) ApplyDefaults() {
	if s.TestSize == 0 {
		s.TestSize = DefaultTestSize
	}
	if s.RandomState == nil {
		seed := int64(DefaultRandomState)
		s.RandomState = &seed
	}
}

// Seed returns the split seed, falling back to the default.
func (s *TrainingSpec) Seed() int64 {
	if s.RandomState == nil {
		return DefaultRandomState
	}
	return *s.RandomState
}

// Validate checks required fields and ranges. Algorithm support is checked by the caller.
func (s *TrainingSpec) Validate() error {
	if s.DatasetID == "" {
		return Validationf("dataset_id is required")
	}
	if s.Algorithm == "" {
		return Validationf("algorithm is required")
	}
	if s.TargetColumn == "" {
		return Validationf("target_column is required")
	}
	if len(s.FeatureColumns) == 0 {
		return Validationf("feature_columns must not be empty")
	}
	if slices.Contains(s.FeatureColumns, s.TargetColumn) {
		return Validationf("target column %q listed as a feature", s.TargetColumn)
	}
	if s.TestSize <= 0 || s.TestSize >= 1 {
		return Validationf("test_size must be in (0, 1), got %v", s.TestSize)
	}
	return nil
}

// PredictionSpec configures a batch prediction job.
type PredictionSpec struct {
	ModelID           string `json:"model_id" yaml:"model_id"`
	DatasetID         string `json:"dataset_id" yaml:"dataset_id"`
	ChunkSize         int    `json:"chunk_size" yaml:"chunk_size"`
	IncludeConfidence bool   `json:"include_confidence" yaml:"include_confidence"`
	OutputFormat      string `json:"output_format" yaml:"output_format"`
}

// ApplyDefaults fills unset fields. defaultChunk is the configured chunk size.
func (s *PredictionSpec) ApplyDefaults(defaultChunk int) {
	if s.ChunkSize == 0 {
		s.ChunkSize = defaultChunk
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.OutputFormat == "" {
		s.OutputFormat = FormatJSON
	}
}

// Validate checks required fields and ranges.
func (s *PredictionSpec) Validate() error {
	if s.ModelID == "" {
		return Validationf("model_id is required")
	}
	if s.DatasetID == "" {
		return Validationf("dataset_id is required")
	}
	if s.ChunkSize < 0 {
		return Validationf("chunk_size must be positive, got %d", s.ChunkSize)
	}
	switch s.OutputFormat {
	case FormatJSON, FormatCSV, FormatYAML:
	default:
		return Validationf("unsupported output_format %q", s.OutputFormat)
	}
	return nil
}

// ValidationSpec configures a validation job.
type ValidationSpec struct {
	ModelID        string   `json:"model_id" yaml:"model_id"`
	DatasetID      string   `json:"dataset_id" yaml:"dataset_id"`
	TargetColumn   string   `json:"target_column,omitempty" yaml:"target_column,omitempty"`
	FeatureColumns []string `json:"feature_columns,omitempty" yaml:"feature_columns,omitempty"`
	Mode           string   `json:"validation_type" yaml:"validation_type"`
	Folds          int      `json:"cv_folds" yaml:"cv_folds"`
	Metrics        []string `json:"metrics" yaml:"metrics"`
}

// ApplyDefaults fills unset fields.
func (s *ValidationSpec) ApplyDefaults() {
	if s.Mode == "" {
		s.Mode = ModeCrossValidation
	}
	if s.Folds == 0 {
		s.Folds = DefaultFolds
	}
	if len(s.Metrics) == 0 {
		s.Metrics = slices.Clone(DefaultValidationMetrics)
	}
}

// Validate checks required fields and ranges.
func (s *ValidationSpec) Validate() error {
	if s.ModelID == "" {
		return Validationf("model_id is required")
	}
	if s.DatasetID == "" {
		return Validationf("dataset_id is required")
	}
	switch s.Mode {
	case ModeCrossValidation:
		if s.Folds < 2 {
			return Validationf("cv_folds must be at least 2, got %d", s.Folds)
		}
	case ModeHoldout:
	default:
		return Validationf("unsupported validation_type %q", s.Mode)
	}
	return nil
}
