package features

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/behaviorsec/kestrel/internal/domain"
)

func testExtractor() *Extractor {
	return NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func epoch(v int64) *int64 { return &v }

func keySeq() []domain.KeyEvent {
	return []domain.KeyEvent{
		{Key: "a", Event: domain.KeyPressed, Epoch: epoch(1000)},
		{Key: "a", Event: domain.KeyReleased, Epoch: epoch(1200)},
		{Key: "b", Event: domain.KeyPressed, Epoch: epoch(1500)},
		{Key: "b", Event: domain.KeyReleased, Epoch: epoch(1700)},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func isZero(vec domain.FeatureVector, from, to int) bool {
	for i := from; i < to; i++ {
		if vec[i] != 0 {
			return false
		}
	}
	return true
}

func TestExtractVectorLengthAlwaysFixed(t *testing.T) {
	e := testExtractor()

	keys := keySeq()
	touches := []domain.TouchEvent{
		{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: 100, Y: 200}, Epoch: 1000},
		{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 150, Y: 250}, Epoch: 1100},
	}
	sensors := []domain.SensorSample{
		{Accelerometer: &domain.Vec3{X: 0.1, Y: 0.2, Z: 9.8}, Timestamp: 1000},
		{Accelerometer: &domain.Vec3{X: 0.2, Y: 0.1, Z: 9.7}, Timestamp: 1050},
	}

	// Every presence combination must produce exactly the fixed length.
	for mask := 0; mask < 8; mask++ {
		sample := &domain.BehavioralSample{}
		if mask&1 != 0 {
			sample.KeyEvents = keys
		}
		if mask&2 != 0 {
			sample.TouchEvents = touches
		}
		if mask&4 != 0 {
			sample.SensorData = sensors
		}
		vec := e.Extract(sample)
		if len(vec) != domain.FeatureVectorLen {
			t.Errorf("mask %d: expected %d features, got %d", mask, domain.FeatureVectorLen, len(vec))
		}
	}

	if got := e.Extract(nil); len(got) != domain.FeatureVectorLen {
		t.Errorf("nil sample: expected %d features, got %d", domain.FeatureVectorLen, len(got))
	}
}

func TestExtractDwellFlightRhythm(t *testing.T) {
	e := testExtractor()
	vec := e.Extract(&domain.BehavioralSample{KeyEvents: keySeq()})

	// Dwell times are [200, 200].
	if !almostEqual(vec[domain.FeatureDwellOffset], 200) {
		t.Errorf("dwell mean: expected 200, got %f", vec[domain.FeatureDwellOffset])
	}
	if !almostEqual(vec[domain.FeatureDwellOffset+1], 0) {
		t.Errorf("dwell std: expected 0, got %f", vec[domain.FeatureDwellOffset+1])
	}
	if !almostEqual(vec[domain.FeatureDwellOffset+2], 200) || !almostEqual(vec[domain.FeatureDwellOffset+3], 200) {
		t.Error("dwell min/max should both be 200")
	}
	if !almostEqual(vec[domain.FeatureDwellOffset+4], 200) || !almostEqual(vec[domain.FeatureDwellOffset+5], 200) {
		t.Error("dwell p25/p75 should both be 200")
	}

	// Single flight: released@1200 to pressed@1500.
	if !almostEqual(vec[domain.FeatureFlightOffset], 300) {
		t.Errorf("flight mean: expected 300, got %f", vec[domain.FeatureFlightOffset])
	}

	// Rhythm: presses at 1000 and 1500.
	if !almostEqual(vec[domain.FeatureRhythmOffset], 500) {
		t.Errorf("rhythm mean: expected 500, got %f", vec[domain.FeatureRhythmOffset])
	}
}

func TestExtractKeyBlockGating(t *testing.T) {
	e := testExtractor()

	t.Run("single key event zeroes whole block", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			KeyEvents: []domain.KeyEvent{{Key: "a", Event: domain.KeyPressed, Epoch: epoch(1000)}},
		})
		if !isZero(vec, 0, domain.KeyBlockWidth) {
			t.Error("key block should be all zero for a single event")
		}
	})

	t.Run("releases only leave sub-blocks zero", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			KeyEvents: []domain.KeyEvent{
				{Key: "a", Event: domain.KeyReleased, Epoch: epoch(1000)},
				{Key: "b", Event: domain.KeyReleased, Epoch: epoch(1100)},
			},
		})
		if !isZero(vec, domain.FeatureDwellOffset, domain.FeatureDwellOffset+domain.FeatureDwellWidth) {
			t.Error("dwell stats should be zero without pressed/released pairs")
		}
		if !isZero(vec, domain.FeatureRhythmOffset, domain.FeatureRhythmOffset+domain.FeatureRhythmWidth) {
			t.Error("rhythm stats should be zero without two presses")
		}
	})

	t.Run("reserved key slots stay zero", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{KeyEvents: keySeq()})
		if !isZero(vec, domain.FeatureKeyReserved, domain.FeatureKeyReserved+domain.FeatureKeyResWidth) {
			t.Error("reserved key slots must always be zero")
		}
	})
}

func TestExtractTouchDistances(t *testing.T) {
	e := testExtractor()
	vec := e.Extract(&domain.BehavioralSample{
		TouchEvents: []domain.TouchEvent{
			{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: 100, Y: 200}, Epoch: 1000},
			{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 150, Y: 250}, Epoch: 1100},
		},
	})

	want := math.Sqrt(5000) // about 70.71
	if !almostEqual(vec[domain.FeatureTouchOffset], want) {
		t.Errorf("touch mean distance: expected %f, got %f", want, vec[domain.FeatureTouchOffset])
	}
	if !almostEqual(vec[domain.FeatureTouchOffset+1], 0) {
		t.Error("single distance has zero std")
	}
}

func TestExtractSensorChannels(t *testing.T) {
	e := testExtractor()

	t.Run("accelerometer stats", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			SensorData: []domain.SensorSample{
				{Accelerometer: &domain.Vec3{X: 0.1, Y: 0.2, Z: 9.8}, Timestamp: 1000},
				{Accelerometer: &domain.Vec3{X: 0.2, Y: 0.1, Z: 9.7}, Timestamp: 1050},
			},
		})
		// x series [0.1, 0.2]: mean 0.15, population std 0.05.
		if !almostEqual(vec[domain.FeatureAccelOffset], 0.15) {
			t.Errorf("accel x mean: expected 0.15, got %f", vec[domain.FeatureAccelOffset])
		}
		if !almostEqual(vec[domain.FeatureAccelOffset+1], 0.05) {
			t.Errorf("accel x std: expected 0.05, got %f", vec[domain.FeatureAccelOffset+1])
		}
		if !almostEqual(vec[domain.FeatureAccelOffset+2], 0.1) || !almostEqual(vec[domain.FeatureAccelOffset+3], 0.2) {
			t.Error("accel x min/max wrong")
		}
		// Gyro and mag blocks stay zero when absent.
		if !isZero(vec, domain.FeatureGyroOffset, domain.FeatureGyroOffset+domain.FeatureAxisWidth) {
			t.Error("gyro block should be zero")
		}
		if !isZero(vec, domain.FeatureMagOffset, domain.FeatureMagOffset+domain.FeatureAxisWidth) {
			t.Error("mag block should be zero")
		}
	})

	t.Run("gyroscope gated on first sample", func(t *testing.T) {
		// Second sample carries gyroscope but the first does not, so the
		// gyro block stays zero.
		vec := e.Extract(&domain.BehavioralSample{
			SensorData: []domain.SensorSample{
				{Accelerometer: &domain.Vec3{X: 1}, Timestamp: 1000},
				{Accelerometer: &domain.Vec3{X: 2}, Gyroscope: &domain.Vec3{X: 5}, Timestamp: 1050},
			},
		})
		if !isZero(vec, domain.FeatureGyroOffset, domain.FeatureGyroOffset+domain.FeatureAxisWidth) {
			t.Error("gyro block should be zero when first sample lacks gyroscope")
		}
	})

	t.Run("gyroscope populated when first sample has it", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			SensorData: []domain.SensorSample{
				{Accelerometer: &domain.Vec3{X: 1}, Gyroscope: &domain.Vec3{X: 2, Y: 4, Z: 6}, Timestamp: 1000},
				{Accelerometer: &domain.Vec3{X: 2}, Gyroscope: &domain.Vec3{X: 4, Y: 8, Z: 12}, Timestamp: 1050},
			},
		})
		if !almostEqual(vec[domain.FeatureGyroOffset], 3) {
			t.Errorf("gyro x mean: expected 3, got %f", vec[domain.FeatureGyroOffset])
		}
		if !almostEqual(vec[domain.FeatureGyroOffset+4], 6) {
			t.Errorf("gyro y mean: expected 6, got %f", vec[domain.FeatureGyroOffset+4])
		}
	})

	t.Run("single sensor sample zeroes block", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			SensorData: []domain.SensorSample{
				{Accelerometer: &domain.Vec3{X: 1, Y: 2, Z: 3}, Timestamp: 1000},
			},
		})
		if !isZero(vec, domain.FeatureAccelOffset, domain.FeatureSensorReserved) {
			t.Error("sensor region should be zero for a single sample")
		}
	})
}

func TestExtractSessionScalars(t *testing.T) {
	e := testExtractor()
	vec := e.Extract(&domain.BehavioralSample{
		SessionDuration: 42.5,
		TypingSpeed:     3.2,
		FalseEnters:     2,
	})
	if vec[domain.FeatureSessionOffset] != 42.5 {
		t.Errorf("session duration: got %f", vec[domain.FeatureSessionOffset])
	}
	if vec[domain.FeatureSessionOffset+1] != 3.2 {
		t.Errorf("typing speed: got %f", vec[domain.FeatureSessionOffset+1])
	}
	if vec[domain.FeatureSessionOffset+2] != 2 {
		t.Errorf("false enters: got %f", vec[domain.FeatureSessionOffset+2])
	}
}

func TestExtractReplacesNonFiniteWithZero(t *testing.T) {
	e := testExtractor()

	// Coordinates near the float64 limit overflow the distance math to
	// +Inf, and the std of that single distance comes out NaN. Both must
	// leave the vector as 0, never as Inf or a MaxFloat64 bound.
	vec := e.Extract(&domain.BehavioralSample{
		TouchEvents: []domain.TouchEvent{
			{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: -1e200, Y: 0}, Epoch: 1000},
			{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 1e200, Y: 0}, Epoch: 1100},
		},
	})

	if len(vec) != domain.FeatureVectorLen {
		t.Fatalf("expected %d features, got %d", domain.FeatureVectorLen, len(vec))
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("feature %d is non-finite: %f", i, v)
		}
	}
	if !isZero(vec, domain.FeatureTouchOffset, domain.FeatureTouchOffset+domain.FeatureTouchWidth) {
		t.Errorf("overflowed touch stats should be zeroed, got %v",
			vec[domain.FeatureTouchOffset:domain.FeatureTouchOffset+domain.FeatureTouchWidth])
	}
}

func TestExtractMalformedSampleFallsBackToZeros(t *testing.T) {
	e := testExtractor()

	t.Run("key event missing epoch", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			KeyEvents: []domain.KeyEvent{
				{Key: "a", Event: domain.KeyPressed, Epoch: epoch(1000)},
				{Key: "a", Event: domain.KeyReleased}, // no epoch
			},
			SessionDuration: 10,
		})
		if len(vec) != domain.FeatureVectorLen {
			t.Fatalf("expected %d features, got %d", domain.FeatureVectorLen, len(vec))
		}
		// The whole vector is zeroed, including the otherwise-valid
		// session scalars.
		if !isZero(vec, 0, domain.FeatureVectorLen) {
			t.Error("expected all-zero vector for malformed sample")
		}
	})

	t.Run("touch event missing coordinates", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			TouchEvents: []domain.TouchEvent{
				{Event: domain.TouchDown, Epoch: 1000},
				{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 1, Y: 1}, Epoch: 1100},
			},
		})
		if !isZero(vec, 0, domain.FeatureVectorLen) {
			t.Error("expected all-zero vector for malformed touch data")
		}
	})

	t.Run("sensor sample missing accelerometer", func(t *testing.T) {
		vec := e.Extract(&domain.BehavioralSample{
			SensorData: []domain.SensorSample{
				{Accelerometer: &domain.Vec3{X: 1}, Timestamp: 1000},
				{Timestamp: 1050},
			},
		})
		if !isZero(vec, 0, domain.FeatureVectorLen) {
			t.Error("expected all-zero vector for malformed sensor data")
		}
	})
}
