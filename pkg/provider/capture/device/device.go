// Package device implements capture.Backend over a native, on-device speech
// recognizer.
//
// A [Recognizer] is the platform seam: it starts and stops listening for a
// given token and reports start/result/error/end through [Handlers]. The
// backend turns those callbacks into the capture session lifecycle, dropping
// callbacks that carry a token other than the active session's.
// [STTRecognizer] is the bundled Recognizer, built from a microphone
// [audio.Source] and an [stt.Provider].
package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/capture"
)

// Name is the backend name reported in logs and metrics.
const Name = "device"

// Handlers receive recognizer events. Every callback carries the token
// passed to [Recognizer.Start].
type Handlers struct {
	OnStart  func(token uint64)
	OnResult func(token uint64, transcript string)
	OnError  func(token uint64, err error)
	OnEnd    func(token uint64)
}

// Recognizer is a native speech recognizer.
type Recognizer interface {
	// Available reports whether recognition can run on this host.
	Available(ctx context.Context) bool

	// SetHandlers installs the event callbacks. It is called once, before
	// the first Start.
	SetHandlers(h Handlers)

	// Start begins listening in locale. Errors returned here are synchronous
	// failures; no callbacks follow for token.
	Start(ctx context.Context, locale string, token uint64) error

	// Stop asks the recognizer to finish the utterance for token. Buffered
	// speech is still reported through OnResult.
	Stop(token uint64) error
}

// Option is a functional option for [New].
type Option func(*Backend)

// WithStopGrace bounds how long a stopped session waits for the recognizer's
// final result. Defaults to capture.DefaultStopGrace.
func WithStopGrace(d time.Duration) Option {
	return func(b *Backend) { b.stopGrace = d }
}

// Backend implements capture.Backend for a [Recognizer].
type Backend struct {
	rec       Recognizer
	tracker   *capture.Tracker
	stopGrace time.Duration
}

// New wires rec's callbacks into a new Backend.
func New(rec Recognizer, opts ...Option) *Backend {
	b := &Backend{
		rec:       rec,
		tracker:   capture.NewTracker(Name),
		stopGrace: capture.DefaultStopGrace,
	}
	for _, o := range opts {
		o(b)
	}
	rec.SetHandlers(Handlers{
		OnStart: func(token uint64) { b.tracker.MarkListening(token) },
		OnResult: func(token uint64, transcript string) {
			b.tracker.Complete(token, strings.TrimSpace(transcript))
		},
		OnError: func(token uint64, err error) { b.tracker.Fail(token, err) },
		OnEnd: func(token uint64) {
			if b.tracker.Stopping(token) {
				b.tracker.Complete(token, "")
				return
			}
			b.tracker.Fail(token, capture.NewError(capture.KindRecognition, "no speech detected", nil))
		},
	})
	return b
}

// Name implements capture.Backend.
func (b *Backend) Name() string { return Name }

// Available implements capture.Backend.
func (b *Backend) Available(ctx context.Context) bool { return b.rec.Available(ctx) }

// Start implements capture.Backend.
func (b *Backend) Start(ctx context.Context, languageHint string, onResult capture.ResultFunc) (*capture.Session, error) {
	s, err := b.tracker.Begin(languageHint, onResult)
	if err != nil {
		return s, err
	}
	if !b.rec.Available(ctx) {
		b.tracker.Reject(s.ID())
		return s, capture.NewError(capture.KindNotAvailable, "no on-device recognizer", nil)
	}
	if err := b.rec.Start(ctx, lang.RecognitionLocaleForHint(languageHint), s.ID()); err != nil {
		b.tracker.Reject(s.ID())
		return s, capture.Classify(err)
	}
	return s, nil
}

// Stop implements capture.Backend.
func (b *Backend) Stop(s *capture.Session) error {
	if s == nil || !b.tracker.MarkStopping(s.ID(), b.stopGrace) {
		return nil
	}
	if err := b.rec.Stop(s.ID()); err != nil {
		b.tracker.Complete(s.ID(), "")
		return err
	}
	return nil
}

// Close implements capture.Backend.
func (b *Backend) Close() error {
	s := b.tracker.Abort()
	if s == nil {
		return nil
	}
	if err := b.rec.Stop(s.ID()); err != nil && !errors.Is(err, ErrNotActive) {
		return err
	}
	return nil
}

// Current returns the active session, or nil.
func (b *Backend) Current() *capture.Session { return b.tracker.Current() }

var _ capture.Backend = (*Backend)(nil)
