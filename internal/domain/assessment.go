package domain

import (
	"time"
)

// Assessment is the complete result of running one behavioral sample
// through the pipeline: quality gate, feature extraction, heuristics,
// model prediction (when available), aggregation, and policy disposition.
type Assessment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	SampleID  string    `json:"sampleId"`
	SubjectID string    `json:"subjectId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Heuristic signal (always present).
	Indicators RiskIndicatorSet `json:"riskIndicators"`

	// Model signal. ModelAvailable distinguishes "no model" from "model
	// says low risk"; Prediction is nil when unavailable.
	ModelAvailable bool        `json:"modelAvailable"`
	Prediction     *Prediction `json:"prediction,omitempty"`
	ModelRiskScore float64     `json:"modelRiskScore"`
	ModelRiskLevel string      `json:"modelRiskLevel"`

	// The two risk scores above are never merged; both are surfaced.

	Quality  ValidationResult `json:"quality"`
	Features FeatureVector    `json:"featureVector,omitempty"`

	// Disposition from the policy engine.
	Disposition   string         `json:"disposition"`
	PolicyResults []PolicyResult `json:"policyResults,omitempty"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata carries processing information for one assessment.
type AssessmentMetadata struct {
	TraceID          string `json:"traceId"`
	ExtractMs        int64  `json:"extractMs"`
	PredictMs        int64  `json:"predictMs"`
	TotalMs          int64  `json:"totalMs"`
	PoliciesEvaluated int   `json:"policiesEvaluated"`
	RecentSamples    int64  `json:"recentSamples"`
	EngineVersion    string `json:"engineVersion"`
}

// Dispositions produced by the policy engine. With no policies loaded a
// sample is allowed; deny wins over challenge when multiple policies fire.
const (
	DispositionAllow     = "allow"
	DispositionChallenge = "challenge"
	DispositionDeny      = "deny"
)

// IsAlert reports whether an assessment should be published to the alert
// topic: either signal at High, or a deny disposition.
func (a *Assessment) IsAlert() bool {
	return a.Indicators.RiskLevel == RiskHigh ||
		(a.ModelAvailable && a.ModelRiskLevel == RiskHigh) ||
		a.Disposition == DispositionDeny
}
