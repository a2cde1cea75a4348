// Package recognizer defines the local fallback speech-recognition interface
// consumed by the synchronization engine. A recognizer turns raw PCM audio
// into interim and final text results; a final result carries the
// authoritative cumulative text of the phrase, never a delta.
package recognizer

import "context"

// Result is one recognition result.
type Result struct {
	// Text is the recognized phrase. For finals this is the full cumulative
	// text of the utterance.
	Text string

	// Confidence is the recognizer's confidence score (0.0 to 1.0), zero
	// when the backend does not report one.
	Confidence float64
}

// Config configures a recognition session. Zero values fall back to the
// recognizer's defaults.
type Config struct {
	// Language is a BCP-47 language code, e.g. "en".
	Language string

	// SampleRate is the PCM sample rate in Hz of the audio fed to SendAudio.
	SampleRate int

	// Channels is the PCM channel count.
	Channels int
}

// Session is one live recognition stream. The Interims and Finals channels
// are closed when the session ends.
type Session interface {
	// SendAudio queues raw 16-bit little-endian signed PCM audio.
	SendAudio(chunk []byte) error

	// Interims returns the channel of interim results.
	Interims() <-chan Result

	// Finals returns the channel of final results.
	Finals() <-chan Result

	// Close ends the session, flushing any buffered speech first. Safe to
	// call multiple times.
	Close() error
}

// Recognizer creates recognition sessions.
type Recognizer interface {
	// Start opens a new session. The session stops when ctx is cancelled or
	// Close is called.
	Start(ctx context.Context, cfg Config) (Session, error)

	// Close releases resources shared across sessions.
	Close() error
}
