// Package heuristics computes rule-of-thumb risk indicators directly from
// raw telemetry. The engine is independent of the trained classifier and
// serves as an explainable cross-check: each flag names the behavior that
// tripped it.
package heuristics

import (
	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/stats"
)

// Fixed decision thresholds. These are part of the indicator contract and
// are not configurable.
const (
	// TypingIntervalThresholdMs flags a mean inter-press interval above
	// this value in milliseconds.
	TypingIntervalThresholdMs = 5000

	// AccelVarianceThreshold flags any accelerometer axis whose
	// population variance exceeds this value.
	AccelVarianceThreshold = 15

	// TouchDistanceThreshold flags a mean touch movement distance above
	// this value in pixels.
	TouchDistanceThreshold = 100
)

// Engine computes heuristic risk indicators. Stateless and safe for
// concurrent use.
type Engine struct{}

// NewEngine creates a heuristic engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Assess evaluates all indicators for a sample. It never fails: missing
// event fields read as zero rather than aborting the assessment.
func (e *Engine) Assess(sample *domain.BehavioralSample) domain.RiskIndicatorSet {
	out := domain.RiskIndicatorSet{}
	if sample != nil {
		out.TypingSpeedAnomaly = typingSpeedAnomaly(sample.KeyEvents)
		out.SensorVarianceHigh = sensorVarianceHigh(sample.SensorData)
		out.TouchPatternIrregular = touchPatternIrregular(sample.TouchEvents)
	}
	// SessionConsistencyLow is reserved and always false.

	flags := 0
	for _, f := range []bool{
		out.TypingSpeedAnomaly,
		out.SensorVarianceHigh,
		out.TouchPatternIrregular,
		out.SessionConsistencyLow,
	} {
		if f {
			flags++
		}
	}
	out.RiskScore = float64(flags) / domain.IndicatorCount
	out.RiskLevel = levelFor(out.RiskScore)
	return out
}

func levelFor(score float64) string {
	switch {
	case score > 0.5:
		return domain.RiskHigh
	case score > 0.2:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// typingSpeedAnomaly flags unnaturally slow typing: the mean interval
// between consecutive pressed events exceeding the threshold.
func typingSpeedAnomaly(events []domain.KeyEvent) bool {
	if len(events) < 2 {
		return false
	}
	var intervals []float64
	for i := 1; i < len(events); i++ {
		if events[i-1].Event == domain.KeyPressed && events[i].Event == domain.KeyPressed {
			intervals = append(intervals, float64(epochOrZero(events[i])-epochOrZero(events[i-1])))
		}
	}
	if len(intervals) == 0 {
		return false
	}
	return stats.Mean(intervals) > TypingIntervalThresholdMs
}

// sensorVarianceHigh flags erratic device motion: any accelerometer axis
// with population variance above the threshold.
func sensorVarianceHigh(samples []domain.SensorSample) bool {
	if len(samples) < 2 {
		return false
	}
	n := len(samples)
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	zs := make([]float64, 0, n)
	for _, s := range samples {
		if s.Accelerometer != nil {
			xs = append(xs, s.Accelerometer.X)
			ys = append(ys, s.Accelerometer.Y)
			zs = append(zs, s.Accelerometer.Z)
		} else {
			xs = append(xs, 0)
			ys = append(ys, 0)
			zs = append(zs, 0)
		}
	}
	for _, axis := range [][]float64{xs, ys, zs} {
		if stats.Variance(axis) > AccelVarianceThreshold {
			return true
		}
	}
	return false
}

// touchPatternIrregular flags implausibly long swipes: mean touch-to-
// release distance above the threshold.
func touchPatternIrregular(events []domain.TouchEvent) bool {
	if len(events) < 2 {
		return false
	}
	var distances []float64
	for i := 1; i < len(events); i++ {
		if events[i-1].Event == domain.TouchDown && events[i].Event == domain.TouchRelease {
			ax, ay := coordsOrZero(events[i-1])
			bx, by := coordsOrZero(events[i])
			distances = append(distances, stats.Euclidean(ax, ay, bx, by))
		}
	}
	if len(distances) == 0 {
		return false
	}
	return stats.Mean(distances) > TouchDistanceThreshold
}

func epochOrZero(ev domain.KeyEvent) int64 {
	if ev.Epoch == nil {
		return 0
	}
	return *ev.Epoch
}

func coordsOrZero(ev domain.TouchEvent) (float64, float64) {
	if ev.Coordinates == nil {
		return 0, 0
	}
	return ev.Coordinates.X, ev.Coordinates.Y
}
