// Package quality validates raw sample payloads before they enter the
// assessment pipeline and scores how much signal they carry.
package quality

import (
	"fmt"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// Thresholds used for warnings and the quality score factors.
const (
	keyWarnMin    = 2
	sensorWarnMin = 5
)

// requiredFields are checked in this order so error lists are stable.
var requiredFields = []string{"keyEvents", "touchEvents", "sensorData"}

// Validator checks structural requirements on a raw payload and computes
// a data-quality score. Stateless and safe for concurrent use.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate inspects a decoded JSON payload. Checks are additive: every
// failed requirement contributes its own error, nothing short-circuits.
// The quality score is computed regardless of validity.
func (v *Validator) Validate(payload map[string]any) domain.ValidationResult {
	result := domain.ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	for _, field := range requiredFields {
		raw, ok := payload[field]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("Missing required field: %s", field))
			continue
		}
		if _, isList := raw.([]any); !isList {
			result.Errors = append(result.Errors, fmt.Sprintf("%s must be a list", field))
		}
	}
	if len(result.Errors) > 0 {
		result.IsValid = false
	}

	keyCount, keyIsList := listLen(payload["keyEvents"])
	touchCount, _ := listLen(payload["touchEvents"])
	sensorCount, sensorIsList := listLen(payload["sensorData"])

	// Thin-data warnings apply only to fields present as lists; missing
	// or malformed fields are already reported as errors above.
	if keyIsList && keyCount < keyWarnMin {
		result.Warnings = append(result.Warnings, "Very few key events detected")
	}
	if sensorIsList && sensorCount < sensorWarnMin {
		result.Warnings = append(result.Warnings, "Limited sensor data available")
	}

	result.DataQualityScore = qualityScore(keyCount, sensorCount, touchCount)
	return result
}

// qualityScore averages three per-category factors. Each factor is 1.0
// when the category is well populated, 0.5 when thin, 0 when empty.
func qualityScore(keyCount, sensorCount, touchCount int) float64 {
	return (factor(keyCount, 5, 2) + factor(sensorCount, 10, 5) + factor(touchCount, 3, 1)) / 3
}

func factor(count, full, half int) float64 {
	switch {
	case count >= full:
		return 1.0
	case count >= half:
		return 0.5
	default:
		return 0
	}
}

func listLen(raw any) (int, bool) {
	if list, ok := raw.([]any); ok {
		return len(list), true
	}
	return 0, false
}
