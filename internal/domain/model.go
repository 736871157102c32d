package domain

import (
	"context"
	"errors"
)

// ErrModelUnavailable is returned by model collaborators when no trained
// model is loaded. Callers must treat this as "no answer", never as a
// low-risk answer.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrInsufficientData is returned by the training collaborator when too few
// labeled samples were supplied; training is never attempted with
// degenerate data.
var ErrInsufficientData = errors.New("insufficient training data")

// Scaler standardizes a raw feature vector. Deterministic for fixed
// trained parameters; output length equals input length.
type Scaler interface {
	Scale(ctx context.Context, features []float64) ([]float64, error)
}

// Reducer projects a scaled vector into the reduced representation the
// classifier consumes. One-way and deterministic.
type Reducer interface {
	Reduce(ctx context.Context, scaled []float64) ([]float64, error)
}

// Classifier returns the probability in [0,1] that a reduced sample is
// legitimate.
type Classifier interface {
	Classify(ctx context.Context, reduced []float64) (float64, error)
}

// AnomalyDetector scores a reduced sample; more negative is more anomalous.
// The boolean is the detector's own inlier/outlier label.
type AnomalyDetector interface {
	Score(ctx context.Context, reduced []float64) (score float64, outlier bool, err error)
}

// ModelInfo describes the state of the external model service.
type ModelInfo struct {
	ModelLoaded  bool     `json:"modelLoaded"`
	ScalerLoaded bool     `json:"scalerLoaded"`
	ReducerLoaded bool    `json:"reducerLoaded"`
	DetectorLoaded bool   `json:"detectorLoaded"`
	FeatureCount int      `json:"featureCount"`
	ReducedCount int      `json:"reducedCount,omitempty"`
	Version      string   `json:"version,omitempty"`
	FeatureNames []string `json:"featureNames,omitempty"`
}

// TrainingResult summarizes a training run executed by the collaborator.
type TrainingResult struct {
	Accuracy          float64 `json:"accuracy"`
	TrainingSamples   int     `json:"trainingSamples"`
	LegitimateSamples int     `json:"legitimateSamples"`
	FraudulentSamples int     `json:"fraudulentSamples"`
	TotalFeatures     int     `json:"totalFeatures"`
	ReducedFeatures   int     `json:"reducedFeatures"`
}

// ModelAdmin is the management surface of the model collaborator.
type ModelAdmin interface {
	Info(ctx context.Context) (*ModelInfo, error)
	Train(ctx context.Context, features [][]float64, labels []int) (*TrainingResult, error)
	Reset(ctx context.Context) error
}

// ModelServiceConfig holds connection settings for the external model
// service.
type ModelServiceConfig struct {
	// BaseURL of the model service; empty means no model collaborator is
	// configured and predictions are unavailable.
	BaseURL string

	// TimeoutSecs bounds each collaborator call.
	TimeoutSecs int

	// CacheTTLSecs is how long memoized predictions stay valid. Zero
	// disables prediction caching.
	CacheTTLSecs int
}
