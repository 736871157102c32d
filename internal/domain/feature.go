package domain

// FeatureVectorLen is the fixed length of every extracted feature vector.
// Downstream models index by position, so the layout below is a wire
// contract: group offsets and widths never change regardless of which
// event categories a sample carries.
const FeatureVectorLen = 73

// Feature vector layout. Reserved slots are emitted as zero on every path
// so that populated and zero-filled samples agree on positions.
const (
	FeatureDwellOffset    = 0 // 6: mean, std, min, max, p25, p75
	FeatureDwellWidth     = 6
	FeatureFlightOffset   = 6 // 4: mean, std, min, max
	FeatureFlightWidth    = 4
	FeatureRhythmOffset   = 10 // 4: mean, std, min, max of inter-press intervals
	FeatureRhythmWidth    = 4
	FeatureKeyReserved    = 14 // 4: always zero
	FeatureKeyResWidth    = 4
	FeatureTouchOffset    = 18 // 4: mean, std, min, max of movement distance
	FeatureTouchWidth     = 4
	FeatureAccelOffset    = 22 // 12: mean/std/min/max per axis
	FeatureGyroOffset     = 34 // 12
	FeatureMagOffset      = 46 // 12
	FeatureAxisWidth      = 12
	FeatureSensorReserved = 58 // 12: always zero
	FeatureSensorResWidth = 12
	FeatureSessionOffset  = 70 // 3: sessionDuration, typingSpeed, falseEnters
	FeatureSessionWidth   = 3
)

// KeyBlockWidth is the width of the keystroke-derived region that is
// zero-filled as a single unit when a sample has fewer than two key events.
const KeyBlockWidth = FeatureDwellWidth + FeatureFlightWidth + FeatureRhythmWidth + FeatureKeyResWidth // 18

// SensorBlockWidth is the width of the populated sensor region that is
// zero-filled as a single unit when a sample has fewer than two readings.
const SensorBlockWidth = 3 * FeatureAxisWidth // 36

// FeatureVector is a fixed-order vector of FeatureVectorLen finite floats.
// NaN and ±Inf never appear: the extractor replaces them with 0 before
// returning.
type FeatureVector []float64
