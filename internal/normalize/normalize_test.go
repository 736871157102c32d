package normalize

import (
	"testing"

	"github.com/behaviorsec/kestrel/internal/domain"
)

func TestNormalizeNil(t *testing.T) {
	n := NewEventStreamNormalizer()
	out := n.Normalize(nil)
	if out == nil {
		t.Fatal("expected non-nil sample")
	}
	if out.KeyEvents == nil || out.TouchEvents == nil || out.SensorData == nil {
		t.Error("collections should be empty, not nil")
	}
	if len(out.KeyEvents) != 0 || len(out.TouchEvents) != 0 || len(out.SensorData) != 0 {
		t.Error("collections should be empty")
	}
}

func TestNormalizeFillsMissingCollections(t *testing.T) {
	n := NewEventStreamNormalizer()
	epoch := int64(1000)
	in := &domain.BehavioralSample{
		KeyEvents:       []domain.KeyEvent{{Key: "a", Event: domain.KeyPressed, Epoch: &epoch}},
		SessionDuration: 12.5,
	}
	out := n.Normalize(in)

	if len(out.KeyEvents) != 1 {
		t.Errorf("key events lost: %d", len(out.KeyEvents))
	}
	if out.TouchEvents == nil || len(out.TouchEvents) != 0 {
		t.Error("touch events should be empty slice")
	}
	if out.SensorData == nil || len(out.SensorData) != 0 {
		t.Error("sensor data should be empty slice")
	}
	if out.SessionDuration != 12.5 {
		t.Errorf("session duration changed: %f", out.SessionDuration)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	n := NewEventStreamNormalizer()
	in := &domain.BehavioralSample{}
	n.Normalize(in)
	if in.KeyEvents != nil || in.TouchEvents != nil || in.SensorData != nil {
		t.Error("input sample was mutated")
	}
}

func TestNormalizeKeepsBrokenEvents(t *testing.T) {
	n := NewEventStreamNormalizer()
	in := &domain.BehavioralSample{
		KeyEvents: []domain.KeyEvent{
			{Key: "a", Event: domain.KeyPressed}, // no epoch
		},
		TouchEvents: []domain.TouchEvent{
			{Event: domain.TouchDown}, // no coordinates
		},
	}
	out := n.Normalize(in)
	if out.KeyEvents[0].Epoch != nil {
		t.Error("missing epoch must stay missing")
	}
	if out.TouchEvents[0].Coordinates != nil {
		t.Error("missing coordinates must stay missing")
	}
}
