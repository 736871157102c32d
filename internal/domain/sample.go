// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// KeyEvent is a single keystroke event as reported by the client collector.
// Epoch is a pointer so that a malformed event (missing timestamp) is
// detectable downstream instead of silently reading as zero.
type KeyEvent struct {
	Key      string `json:"key"`
	Event    string `json:"event"` // "pressed" or "released"
	Epoch    *int64 `json:"epoch"` // milliseconds
	InputBox string `json:"inputBox,omitempty"`
}

// Key event states.
const (
	KeyPressed  = "pressed"
	KeyReleased = "released"
)

// Coordinates is a 2D screen position.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TouchEvent is a single touch/pointer event.
type TouchEvent struct {
	Event       string       `json:"event"` // "touch" or "release"
	Coordinates *Coordinates `json:"coordinates"`
	Epoch       int64        `json:"epoch"`
}

// Touch event states.
const (
	TouchDown    = "touch"
	TouchRelease = "release"
)

// Vec3 is a 3-axis sensor reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorSample is one motion-sensor reading. Gyroscope and magnetometer are
// optional per device capability; accelerometer is expected but may be
// absent in malformed telemetry, hence the pointer.
type SensorSample struct {
	Accelerometer *Vec3 `json:"accelerometer"`
	Gyroscope     *Vec3 `json:"gyroscope,omitempty"`
	Magnetometer  *Vec3 `json:"magnetometer,omitempty"`
	Timestamp     int64 `json:"timestamp"`
}

// BehavioralSample is one session's collected behavioral telemetry: the unit
// of input to feature extraction, heuristic assessment, and prediction.
// Any collection may be nil when the client did not report that category.
type BehavioralSample struct {
	KeyEvents       []KeyEvent     `json:"keyEvents"`
	TouchEvents     []TouchEvent   `json:"touchEvents"`
	SensorData      []SensorSample `json:"sensorData"`
	SessionDuration float64        `json:"sessionDuration"`
	TypingSpeed     float64        `json:"typingSpeed"`
	FalseEnters     int            `json:"falseEnters"`
}

// SampleRecord is a persisted behavioral sample with its envelope.
type SampleRecord struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	SubjectID string `json:"subjectId"`
	SessionID string `json:"sessionId,omitempty"`

	// Payload is the raw sample as received, kept verbatim for replay
	// and retraining.
	Payload []byte `json:"-"`

	// Counts captured at ingest for cheap listing queries.
	KeyEventCount     int `json:"keyEventCount"`
	TouchEventCount   int `json:"touchEventCount"`
	SensorSampleCount int `json:"sensorSampleCount"`

	ReceivedAt time.Time `json:"receivedAt"`
}
