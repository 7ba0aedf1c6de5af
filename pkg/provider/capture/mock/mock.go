// Package mock provides a test double for the capture.Backend interface.
//
// Backend behaves like a real backend with respect to the single capture slot
// and token handling (it uses a capture.Tracker internally); tests drive the
// outcome of the active session with Complete and Fail.
//
// Example:
//
//	b := mock.New()
//	s, _ := b.Start(ctx, "en", onResult)
//	b.Complete("hello") // onResult receives {Transcript: "hello"}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/langswap/pkg/provider/capture"
)

// StartCall records a single invocation of Backend.Start.
type StartCall struct {
	LanguageHint string
}

// Backend is a mock implementation of capture.Backend.
type Backend struct {
	tracker *capture.Tracker

	mu sync.Mutex

	// Unavailable makes Available report false and Start fail with
	// capture.ErrNotAvailable.
	Unavailable bool

	// StartErr, if non-nil, fails every Start synchronously.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall

	// StopCallCount is the number of Stop calls that hit the active session.
	StopCallCount int

	// CloseCallCount is the number of Close calls.
	CloseCallCount int
}

// New returns a ready Backend.
func New() *Backend {
	return &Backend{tracker: capture.NewTracker("mock")}
}

// Name implements capture.Backend.
func (b *Backend) Name() string { return "mock" }

// Available implements capture.Backend.
func (b *Backend) Available(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.Unavailable
}

// Start implements capture.Backend.
func (b *Backend) Start(ctx context.Context, languageHint string, onResult capture.ResultFunc) (*capture.Session, error) {
	b.mu.Lock()
	b.StartCalls = append(b.StartCalls, StartCall{LanguageHint: languageHint})
	startErr, unavailable := b.StartErr, b.Unavailable
	b.mu.Unlock()

	s, err := b.tracker.Begin(languageHint, onResult)
	if err != nil {
		return s, err
	}
	if unavailable {
		b.tracker.Reject(s.ID())
		return s, capture.NewError(capture.KindNotAvailable, "mock unavailable", nil)
	}
	if startErr != nil {
		b.tracker.Reject(s.ID())
		return s, capture.Classify(startErr)
	}
	b.tracker.MarkListening(s.ID())
	return s, nil
}

// Stop implements capture.Backend. The session stays in Stopping until the
// test calls Complete or Fail.
func (b *Backend) Stop(s *capture.Session) error {
	if s == nil {
		return nil
	}
	// Large grace: tests decide when the session ends.
	if b.tracker.MarkStopping(s.ID(), 1<<62) {
		b.mu.Lock()
		b.StopCallCount++
		b.mu.Unlock()
	}
	return nil
}

// Close implements capture.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.CloseCallCount++
	b.mu.Unlock()
	b.tracker.Abort()
	return nil
}

// Current returns the active session, or nil.
func (b *Backend) Current() *capture.Session { return b.tracker.Current() }

// Complete delivers transcript to the active session. It reports whether a
// session was active.
func (b *Backend) Complete(transcript string) bool {
	s := b.tracker.Current()
	if s == nil {
		return false
	}
	return b.tracker.Complete(s.ID(), transcript)
}

// CompleteToken delivers transcript for an explicit token, which may be stale.
func (b *Backend) CompleteToken(token uint64, transcript string) bool {
	return b.tracker.Complete(token, transcript)
}

// Fail delivers err to the active session.
func (b *Backend) Fail(err error) bool {
	s := b.tracker.Current()
	if s == nil {
		return false
	}
	return b.tracker.Fail(s.ID(), err)
}

// StartCallCount returns the number of Start calls.
func (b *Backend) StartCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.StartCalls)
}

var _ capture.Backend = (*Backend)(nil)
