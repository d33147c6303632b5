package model

import (
	"math"
	"strconv"
	"time"
)

// Result carries the kind-specific payload of a completed job. Exactly one
// field is set.
type Result struct {
	Training   *TrainingResult   `json:"training,omitempty"`
	Prediction *PredictionResult `json:"prediction,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

// InsightStatus tags a best-effort computation.
type InsightStatus string

// Insight statuses.
const (
	InsightAvailable     InsightStatus = "available"
	InsightUnavailable   InsightStatus = "unavailable"
	InsightNotApplicable InsightStatus = "not_applicable"
	InsightNotRequested  InsightStatus = "not_requested"
)

// Insight is the outcome of a best-effort computation such as feature
// importance. Unavailable means the computation was attempted and failed;
// NotApplicable means the estimator cannot provide it.
type Insight struct {
	Status InsightStatus      `json:"status"`
	Source string             `json:"source,omitempty"`
	Reason string             `json:"reason,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// TrainingResult is the payload of a completed training job.
type TrainingResult struct {
	ModelID           string             `json:"model_id"`
	Algorithm         string             `json:"algorithm"`
	Metrics           map[string]float64 `json:"metrics"`
	FeatureImportance Insight            `json:"feature_importance"`
	TrainRows         int                `json:"train_rows"`
	TestRows          int                `json:"test_rows"`
	DurationMS        int64              `json:"duration_ms"`
}

// PredictionResult is the payload of a completed batch prediction job.
type PredictionResult struct {
	Location   string        `json:"location"`
	Format     string        `json:"format"`
	Count      int           `json:"count"`
	Confidence InsightStatus `json:"confidence"`
	DurationMS int64         `json:"duration_ms"`
}

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes per-class and averaged classification metrics.
type ClassificationReport struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
}

// Problem types inferred from the target column.
const (
	ProblemRegression     = "regression"
	ProblemClassification = "classification"
)

// ValidationReport is the payload of a completed validation job.
type ValidationReport struct {
	ModelID              string                `json:"model_id"`
	DatasetID            string                `json:"dataset_id"`
	Mode                 string                `json:"validation_type"`
	ProblemType          string                `json:"problem_type"`
	Metrics              map[string]float64    `json:"metrics"`
	FoldScores           map[string][]float64  `json:"cross_validation_scores,omitempty"`
	Labels               []string              `json:"labels,omitempty"`
	ConfusionMatrix      [][]int               `json:"confusion_matrix,omitempty"`
	ClassificationReport *ClassificationReport `json:"classification_report,omitempty"`
	DurationMS           int64                 `json:"duration_ms"`
}

// NoWinner is the BestModel value of a comparison in which no candidate scored.
const NoWinner = "none"

// Comparison ranks candidate models on a shared split.
type Comparison struct {
	Models    []string                      `json:"models"`
	DatasetID string                        `json:"dataset_id"`
	Criterion string                        `json:"comparison_criteria"`
	Metrics   map[string]map[string]float64 `json:"metrics"`
	Skipped   map[string]string             `json:"skipped,omitempty"`
	BestModel string                        `json:"best_model"`
	BestScore *float64                      `json:"best_score,omitempty"`
	CreatedAt time.Time                     `json:"created_at"`
}

// ModelRecord is a persisted fitted model and its training metadata.
type ModelRecord struct {
	ID              string             `json:"model_id"`
	Algorithm       string             `json:"algorithm"`
	TargetColumn    string             `json:"target_column"`
	FeatureColumns  []string           `json:"feature_columns"`
	Hyperparameters map[string]any     `json:"hyperparameters,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	DatasetID       string             `json:"dataset_id"`
	Artifact        []byte             `json:"-"`
	CreatedAt       time.Time          `json:"created_at"`
	// Classes names the class codes of a classifier trained on non-numeric
	// labels: code i predicts Classes[i]. Empty for regressors and numeric
	// labels, whose predictions are the labels themselves.
	Classes []string `json:"classes,omitempty"`
}

// Labels decodes class codes into label names. It returns nil when the model
// has no class names. Codes outside the encoding are formatted as numbers.
func (m *ModelRecord) Labels(pred []float64) []string {
	if len(m.Classes) == 0 {
		return nil
	}
	out := make([]string, len(pred))
	for i, p := range pred {
		if c := int(math.Round(p)); c >= 0 && c < len(m.Classes) && float64(c) == p {
			out[i] = m.Classes[c]
			continue
		}
		out[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return out
}

// PredictRequest asks for synchronous predictions on inline records.
type PredictRequest struct {
	ModelID            string           `json:"model_id"`
	Records            []map[string]any `json:"data"`
	IncludeConfidence  bool             `json:"include_confidence"`
	IncludeExplanation bool             `json:"include_explanation"`
}

// FeatureContribution explains one feature's share of a prediction.
type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Importance   float64 `json:"importance"`
	Contribution float64 `json:"contribution"`
}

// Explanation lists the strongest contributing features of one prediction.
type Explanation struct {
	Prediction  float64               `json:"prediction"`
	TopFeatures []FeatureContribution `json:"top_features"`
}

// PredictResponse is the result of a synchronous prediction.
type PredictResponse struct {
	ModelID      string        `json:"model_id"`
	Predictions  []float64     `json:"predictions"`
	Labels       []string      `json:"predicted_labels,omitempty"`
	Confidence   []float64     `json:"confidence_scores,omitempty"`
	Explanations []Explanation `json:"explanations,omitempty"`
	DurationMS   int64         `json:"processing_duration_ms"`
	PredictedAt  time.Time     `json:"prediction_time"`
}
