// Package types defines the shared types used across all Jarvis packages.
//
// These types are the data flowing between the sensor adapters, the
// recognizers, the session, and the providers. Each package defines its own
// domain types; only cross-cutting structures live here to avoid circular imports.
package types

import "time"

// TranscriptUpdate is one result from a continuous speech recognizer.
// A single utterance produces zero or more non-final updates carrying the
// cumulative best guess, followed by exactly one final update.
type TranscriptUpdate struct {
	// Text is the recognized text so far.
	Text string

	// IsFinal marks the authoritative result for the utterance.
	IsFinal bool

	// Language is the BCP-47 tag the recognizer was configured with.
	// Informational only.
	Language string

	// At is when the update was received.
	At time.Time
}

// Point is a 2-D point in the pixel space of the frame it belongs to.
type Point struct {
	X, Y float64
}

// LandmarksPerHand is the number of points in the hand-landmark model.
const LandmarksPerHand = 21

// Landmark indices used by the gesture recognizer.
const (
	Wrist     = 0
	ThumbTip  = 4
	IndexTip  = 8
	MiddleTip = 12
	RingTip   = 16
	PinkyTip  = 20
)

// Fingertips lists the five fingertip landmark indices.
var Fingertips = [5]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

// Hand is the full landmark set of one detected hand.
type Hand [LandmarksPerHand]Point

// HandFrame is the landmark output for one processed video frame.
// Zero hands is a valid frame meaning nothing was detected.
type HandFrame struct {
	// Hands in detection order. Only the first drives interaction.
	Hands []Hand

	// Width and Height are the pixel dimensions the points were
	// denormalized against.
	Width, Height float64

	// At is the capture instant of the frame.
	At time.Time
}

// MinSide returns the smaller of the frame's width and height.
func (f HandFrame) MinSide() float64 {
	return min(f.Width, f.Height)
}

// LogKind tags a session log entry.
type LogKind string

const (
	LogInfo    LogKind = "info"
	LogWarning LogKind = "warning"
	LogError   LogKind = "error"
	LogSuccess LogKind = "success"
)

// LogEntry is one line of the user-visible status console.
type LogEntry struct {
	ID      string    `json:"id" msgpack:"id"`
	At      time.Time `json:"timestamp" msgpack:"timestamp"`
	Message string    `json:"message" msgpack:"message"`
	Kind    LogKind   `json:"type" msgpack:"type"`
}

// DeviceState holds the smart-home toggles.
type DeviceState struct {
	Lights  bool `json:"lights" msgpack:"lights"`
	Fan     bool `json:"fan" msgpack:"fan"`
	AC      bool `json:"ac" msgpack:"ac"`
	Bedroom bool `json:"bedroom" msgpack:"bedroom"`
}

// Set flips the named device. It reports false for unknown device names.
func (d *DeviceState) Set(device string, on bool) bool {
	switch device {
	case "lights":
		d.Lights = on
	case "fan":
		d.Fan = on
	case "ac":
		d.AC = on
	case "bedroom":
		d.Bedroom = on
	default:
		return false
	}
	return true
}

// UserSettings are the user-tunable preferences persisted across sessions.
type UserSettings struct {
	EnableFaceDetection bool `json:"enableFaceDetection" msgpack:"enableFaceDetection"`
	FastResponseMode    bool `json:"fastResponseMode" msgpack:"fastResponseMode"`
	UltraSensitiveVoice bool `json:"ultraSensitiveVoice" msgpack:"ultraSensitiveVoice"`
	HologramIntensity   int  `json:"hologramIntensity" msgpack:"hologramIntensity"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() UserSettings {
	return UserSettings{
		EnableFaceDetection: true,
		FastResponseMode:    true,
		UltraSensitiveVoice: true,
		HologramIntensity:   80,
	}
}

// Message represents a single message in a language-model conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to keep wake-word aliases recognizable.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "jarvis").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
