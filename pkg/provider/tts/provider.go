// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server or the
// ElevenLabs streaming API) and turns one utterance of text into raw PCM. The
// on-device synthesis engine plays the result through a speaker; the browser
// engine does not use this package at all.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesising req and returns the utterance whose Audio
	// channel yields PCM chunks in Utterance.Format.
	//
	// The Audio channel is closed by the implementation when all audio has
	// been emitted, when synthesis fails, or when ctx is cancelled. The caller
	// must drain it. After the channel is closed, [Utterance.Err] reports a
	// synthesis failure that happened mid-stream.
	//
	// Returns a non-nil error only if synthesis cannot be started.
	Synthesize(ctx context.Context, req Request) (*Utterance, error)
}
