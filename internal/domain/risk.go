package domain

// Risk levels shared by the heuristic engine and the model-side aggregator.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// RiskIndicatorSet is the output of the heuristic engine: named boolean
// indicators computed directly from raw event data, independent of the
// classifier, plus the derived discrete score and level.
type RiskIndicatorSet struct {
	TypingSpeedAnomaly    bool `json:"typing_speed_anomaly"`
	SensorVarianceHigh    bool `json:"sensor_variance_high"`
	TouchPatternIrregular bool `json:"touch_pattern_irregular"`

	// SessionConsistencyLow is reserved: no rule populates it today, but
	// the field stays for schema stability with existing consumers.
	SessionConsistencyLow bool `json:"session_consistency_low"`

	// RiskScore is trueFlags/4, one of {0, 0.25, 0.5, 0.75, 1.0}.
	RiskScore float64 `json:"risk_score"`
	RiskLevel string  `json:"risk_level"`
}

// IndicatorCount is the number of heuristic flags contributing to RiskScore.
const IndicatorCount = 4

// Prediction is the combined output of the external classifier and anomaly
// detector for one sample.
type Prediction struct {
	// Probability that the sample is legitimate, in [0,1].
	Probability float64 `json:"prediction_probability"`

	// Prediction is 1 (legitimate) when Probability > 0.5, else 0.
	Prediction int `json:"prediction"`

	// Confidence is the distance from the decision boundary, in [0,1].
	Confidence float64 `json:"confidence"`

	// AnomalyScore from the outlier detector; more negative means more
	// anomalous.
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`

	// Reduced is the post-dimensionality-reduction representation the
	// classifier actually consumed. Kept for aggregation (variance term)
	// and debugging.
	Reduced []float64 `json:"-"`
}

// ValidationResult reports structural completeness of a raw payload.
// Errors and warnings are additive: every discovered problem is collected,
// nothing short-circuits.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	DataQualityScore float64  `json:"data_quality_score"`
}
