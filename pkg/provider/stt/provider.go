// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// A provider wraps a real-time transcription service and exposes one ordered
// stream of transcript updates per session: zero or more non-final updates
// carrying the cumulative best guess for the current utterance, followed by
// exactly one final update.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/jarvis/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16-bit little-endian PCM).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US", "hi-IN").
	Language string

	// Keywords are vocabulary hints, typically the wake-word aliases.
	Keywords []types.KeywordBoost
}

// Session is an open streaming transcription session.
// Callers must call Close when done. All methods must be safe for concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio. Calling it after Close
	// returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Updates returns the ordered stream of partial and final updates.
	// The channel is closed when the session ends for any reason.
	Updates() <-chan types.TranscriptUpdate

	// Close terminates the session and releases its resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new session. The returned Session accepts audio
	// immediately.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
