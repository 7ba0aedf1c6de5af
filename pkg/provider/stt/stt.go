// Package stt is the speech-to-text contract behind the device capture
// backend. A backend turns a stream of microphone PCM into transcripts; the
// device recognizer opens one [Session] per utterance and keeps the final
// transcripts.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by [Session.Send] once the session is closed.
var ErrSessionClosed = errors.New("stt: session closed")

// Transcript is one recognition result.
type Transcript struct {
	Text string

	// Final results are not revised any more. Interim ones may be replaced
	// by a later result for the same stretch of audio.
	Final bool

	// Confidence in [0, 1], or 0 when the backend does not say.
	Confidence float64
}

// StreamConfig describes the audio a session will receive.
type StreamConfig struct {
	SampleRate int
	Channels   int

	// Language is a BCP-47 tag such as "th-TH". Empty lets the backend
	// detect it where supported.
	Language string
}

// Session is an open recognition stream. Its methods are safe for concurrent
// use.
type Session interface {
	// Send delivers 16-bit little-endian PCM in the agreed format.
	Send(pcm []byte) error

	// Results yields interim and final transcripts in order. It is closed
	// after Close has flushed the audio already sent, or when the backend
	// ends the stream.
	Results() <-chan Transcript

	// Close ends the audio and waits for the last results. Further calls
	// return nil.
	Close() error
}

// Provider opens recognition sessions. Implementations are safe for
// concurrent use.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
