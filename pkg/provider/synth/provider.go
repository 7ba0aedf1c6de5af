// Package synth defines the Engine interface for speech-synthesis platforms.
//
// An Engine is the raw platform capability: it speaks one text at a time and
// reports how each utterance ended through the callbacks in [Options]. It does
// not arbitrate between callers; the speech controller in front of it owns
// cancel-and-replace exclusivity and the speaking indicator.
//
// Implementations must be safe for concurrent use.
package synth

import (
	"context"
	"errors"
)

// ErrNotSupported is reported when the platform has no speech synthesis.
var ErrNotSupported = errors.New("synth: speech synthesis not supported")

// Options configures one utterance.
type Options struct {
	// Language is the BCP-47 locale to speak in (e.g., "th-TH", "en-GB").
	Language string

	// Rate is the speaking rate; 1.0 is normal.
	Rate float64

	// Pitch is the voice pitch; 1.0 is normal.
	Pitch float64

	// Exactly one of OnDone, OnStopped and OnError is called per successful
	// Speak call, on an arbitrary goroutine. Engines may call none of them if
	// Speak itself returned an error.
	OnDone    func()
	OnStopped func()
	OnError   func(err error)
}

// Engine is a platform speech synthesizer.
type Engine interface {
	// Name identifies the engine in logs and metrics ("browser", "device").
	Name() string

	// Available reports whether synthesis can run at all.
	Available(ctx context.Context) bool

	// Speak starts speaking text and returns once the utterance is dispatched.
	// A previous utterance that is still playing is interrupted and reports
	// OnStopped.
	Speak(ctx context.Context, text string, opts Options) error

	// Stop interrupts the current utterance, if any. Its OnStopped fires.
	Stop(ctx context.Context) error

	// IsSpeaking reports whether an utterance is playing.
	IsSpeaking() bool
}
