// Package decision turns model outputs and policy results into the final
// risk verdict for an assessment.
package decision

import (
	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/stats"
)

// Contribution weights and trigger bounds for the model-side risk score.
// The three contributions are additive and the total is capped at 1.0.
const (
	// Probabilities outside the confident band contribute uncertainty
	// risk.
	probabilityLowBound  = 0.3
	probabilityHighBound = 0.7
	probabilityRisk      = 0.3

	// Anomaly scores below this bound contribute outlier risk.
	anomalyBound = -0.5
	anomalyRisk  = 0.4

	// Reduced-space variance above this bound contributes dispersion
	// risk.
	varianceBound = 10.0
	varianceRisk  = 0.3
)

// Level thresholds for the aggregated model risk score.
const (
	levelLowBelow = 0.3
	levelHighFrom = 0.7
)

// Aggregator combines classifier and anomaly-detector outputs into one
// bounded risk score. Stateless and safe for concurrent use.
type Aggregator struct{}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate computes the model risk score in [0, 1]. Contributions are
// independent and additive; the cap keeps pathological inputs bounded.
func (a *Aggregator) Aggregate(probability, anomalyScore float64, reduced []float64) float64 {
	score := 0.0

	if probability < probabilityLowBound || probability > probabilityHighBound {
		score += probabilityRisk
	}
	if anomalyScore < anomalyBound {
		score += anomalyRisk
	}
	if stats.Variance(reduced) > varianceBound {
		score += varianceRisk
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// LevelFor maps an aggregated score to a risk level. Note the boundaries
// differ from the heuristic engine's level mapping.
func LevelFor(score float64) string {
	switch {
	case score < levelLowBelow:
		return domain.RiskLow
	case score < levelHighFrom:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// Resolve picks the final disposition from policy results. The most
// restrictive outcome wins: deny over challenge over allow. Policies that
// errored are skipped. No policies means allow.
func Resolve(results []domain.PolicyResult) string {
	disposition := domain.DispositionAllow
	for _, r := range results {
		switch r.Outcome {
		case domain.PolicyOutcomeDeny:
			return domain.DispositionDeny
		case domain.PolicyOutcomeChallenge:
			disposition = domain.DispositionChallenge
		}
	}
	return disposition
}
