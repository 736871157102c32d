// Package features turns a behavioral sample into the fixed-length
// feature vector consumed by the downstream classifier. The vector layout
// is a wire contract shared with trained models; positions never move.
package features

import (
	"fmt"
	"log/slog"

	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/stats"
)

// Extractor computes feature vectors. Safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to the
// default slog logger.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract computes the 73-value feature vector for a sample. It never
// fails: a malformed sample yields an all-zero vector and a diagnostic
// log record, so one bad client payload cannot take down a batch.
func (e *Extractor) Extract(sample *domain.BehavioralSample) domain.FeatureVector {
	vec := make(domain.FeatureVector, domain.FeatureVectorLen)
	if sample == nil {
		return vec
	}
	if err := fill(sample, vec); err != nil {
		e.logger.Error("feature extraction failed, emitting zero vector",
			"error", err,
			"keyEvents", len(sample.KeyEvents),
			"touchEvents", len(sample.TouchEvents),
			"sensorSamples", len(sample.SensorData))
		return make(domain.FeatureVector, domain.FeatureVectorLen)
	}
	stats.Sanitize(vec)
	return vec
}

func fill(sample *domain.BehavioralSample, vec domain.FeatureVector) error {
	if len(sample.KeyEvents) > 1 {
		if err := fillKeyBlock(sample.KeyEvents, vec); err != nil {
			return err
		}
	}
	if len(sample.TouchEvents) > 1 {
		if err := fillTouchBlock(sample.TouchEvents, vec); err != nil {
			return err
		}
	}
	if len(sample.SensorData) > 1 {
		if err := fillSensorBlock(sample.SensorData, vec); err != nil {
			return err
		}
	}

	vec[domain.FeatureSessionOffset] = sample.SessionDuration
	vec[domain.FeatureSessionOffset+1] = sample.TypingSpeed
	vec[domain.FeatureSessionOffset+2] = float64(sample.FalseEnters)
	return nil
}

func keyEpoch(ev domain.KeyEvent, index int) (int64, error) {
	if ev.Epoch == nil {
		return 0, fmt.Errorf("key event %d missing epoch", index)
	}
	return *ev.Epoch, nil
}

// fillKeyBlock computes dwell, flight, and rhythm statistics. Pairing is
// strictly positional across the event list, not matched per key.
func fillKeyBlock(events []domain.KeyEvent, vec domain.FeatureVector) error {
	var dwells []float64
	for i := 0; i < len(events)-1; i++ {
		if events[i].Event == domain.KeyPressed && events[i+1].Event == domain.KeyReleased {
			a, err := keyEpoch(events[i], i)
			if err != nil {
				return err
			}
			b, err := keyEpoch(events[i+1], i+1)
			if err != nil {
				return err
			}
			dwells = append(dwells, float64(b-a))
		}
	}
	if len(dwells) > 0 {
		vec[domain.FeatureDwellOffset] = stats.Mean(dwells)
		vec[domain.FeatureDwellOffset+1] = stats.StdDev(dwells)
		vec[domain.FeatureDwellOffset+2] = stats.Min(dwells)
		vec[domain.FeatureDwellOffset+3] = stats.Max(dwells)
		vec[domain.FeatureDwellOffset+4] = stats.Percentile(dwells, 25)
		vec[domain.FeatureDwellOffset+5] = stats.Percentile(dwells, 75)
	}

	var flights []float64
	for i := 0; i < len(events)-1; i++ {
		if events[i].Event == domain.KeyReleased && events[i+1].Event == domain.KeyPressed {
			a, err := keyEpoch(events[i], i)
			if err != nil {
				return err
			}
			b, err := keyEpoch(events[i+1], i+1)
			if err != nil {
				return err
			}
			flights = append(flights, float64(b-a))
		}
	}
	if len(flights) > 0 {
		vec[domain.FeatureFlightOffset] = stats.Mean(flights)
		vec[domain.FeatureFlightOffset+1] = stats.StdDev(flights)
		vec[domain.FeatureFlightOffset+2] = stats.Min(flights)
		vec[domain.FeatureFlightOffset+3] = stats.Max(flights)
	}

	var presses []float64
	for i, ev := range events {
		if ev.Event == domain.KeyPressed {
			epoch, err := keyEpoch(ev, i)
			if err != nil {
				return err
			}
			presses = append(presses, float64(epoch))
		}
	}
	if len(presses) > 1 {
		intervals := stats.Diff(presses)
		vec[domain.FeatureRhythmOffset] = stats.Mean(intervals)
		vec[domain.FeatureRhythmOffset+1] = stats.StdDev(intervals)
		vec[domain.FeatureRhythmOffset+2] = stats.Min(intervals)
		vec[domain.FeatureRhythmOffset+3] = stats.Max(intervals)
	}
	return nil
}

func fillTouchBlock(events []domain.TouchEvent, vec domain.FeatureVector) error {
	var distances []float64
	for i := 0; i < len(events)-1; i++ {
		if events[i].Event == domain.TouchDown && events[i+1].Event == domain.TouchRelease {
			a := events[i].Coordinates
			b := events[i+1].Coordinates
			if a == nil {
				return fmt.Errorf("touch event %d missing coordinates", i)
			}
			if b == nil {
				return fmt.Errorf("touch event %d missing coordinates", i+1)
			}
			distances = append(distances, stats.Euclidean(a.X, a.Y, b.X, b.Y))
		}
	}
	if len(distances) > 0 {
		vec[domain.FeatureTouchOffset] = stats.Mean(distances)
		vec[domain.FeatureTouchOffset+1] = stats.StdDev(distances)
		vec[domain.FeatureTouchOffset+2] = stats.Min(distances)
		vec[domain.FeatureTouchOffset+3] = stats.Max(distances)
	}
	return nil
}

func fillSensorBlock(samples []domain.SensorSample, vec domain.FeatureVector) error {
	if err := fillChannel(samples, vec, domain.FeatureAccelOffset, "accelerometer",
		func(s domain.SensorSample) *domain.Vec3 { return s.Accelerometer }); err != nil {
		return err
	}
	// Gyroscope and magnetometer presence is decided by the first sample
	// only. A stream whose first sample carries a channel that later
	// samples drop is treated as malformed.
	if samples[0].Gyroscope != nil {
		if err := fillChannel(samples, vec, domain.FeatureGyroOffset, "gyroscope",
			func(s domain.SensorSample) *domain.Vec3 { return s.Gyroscope }); err != nil {
			return err
		}
	}
	if samples[0].Magnetometer != nil {
		if err := fillChannel(samples, vec, domain.FeatureMagOffset, "magnetometer",
			func(s domain.SensorSample) *domain.Vec3 { return s.Magnetometer }); err != nil {
			return err
		}
	}
	return nil
}

// fillChannel writes mean/std/min/max for the x, y, and z series of one
// sensor channel into a 12-wide block starting at offset.
func fillChannel(samples []domain.SensorSample, vec domain.FeatureVector, offset int, channel string, pick func(domain.SensorSample) *domain.Vec3) error {
	n := len(samples)
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	zs := make([]float64, 0, n)
	for i, s := range samples {
		v := pick(s)
		if v == nil {
			return fmt.Errorf("sensor sample %d missing %s", i, channel)
		}
		xs = append(xs, v.X)
		ys = append(ys, v.Y)
		zs = append(zs, v.Z)
	}
	for i, axis := range [][]float64{xs, ys, zs} {
		base := offset + i*4
		vec[base] = stats.Mean(axis)
		vec[base+1] = stats.StdDev(axis)
		vec[base+2] = stats.Min(axis)
		vec[base+3] = stats.Max(axis)
	}
	return nil
}
