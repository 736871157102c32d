// Package normalize prepares raw behavioral samples for the deterministic
// pipeline. Missing collections become empty slices and missing scalars
// default to zero so downstream stages can range freely, but individual
// events are never repaired: an event with missing required data stays
// broken and fails at the point of use.
package normalize

import (
	"github.com/behaviorsec/kestrel/internal/domain"
)

// EventStreamNormalizer produces a normalized copy of a behavioral sample.
type EventStreamNormalizer struct{}

// NewEventStreamNormalizer creates a normalizer.
func NewEventStreamNormalizer() *EventStreamNormalizer {
	return &EventStreamNormalizer{}
}

// Normalize returns a shallow-copied sample with nil collections replaced
// by empty slices. The input is not mutated.
func (n *EventStreamNormalizer) Normalize(sample *domain.BehavioralSample) *domain.BehavioralSample {
	if sample == nil {
		return &domain.BehavioralSample{
			KeyEvents:   []domain.KeyEvent{},
			TouchEvents: []domain.TouchEvent{},
			SensorData:  []domain.SensorSample{},
		}
	}

	out := *sample
	if out.KeyEvents == nil {
		out.KeyEvents = []domain.KeyEvent{}
	}
	if out.TouchEvents == nil {
		out.TouchEvents = []domain.TouchEvent{}
	}
	if out.SensorData == nil {
		out.SensorData = []domain.SensorSample{}
	}
	return &out
}
