// Package mock provides a test double for the synth.Engine interface.
//
// Engine tracks the current utterance like a real engine: Speak interrupts the
// previous one (which reports OnStopped), Stop interrupts the current one.
// Tests end the current utterance with Finish or Fail.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/langswap/pkg/provider/synth"
)

// SpeakCall records a single invocation of Engine.Speak.
type SpeakCall struct {
	Text string
	Opts synth.Options
}

// Engine is a mock implementation of synth.Engine.
type Engine struct {
	mu sync.Mutex

	// Unavailable makes Available report false and Speak fail with
	// synth.ErrNotSupported.
	Unavailable bool

	// SpeakErr, if non-nil, is returned by Speak without starting an utterance.
	SpeakErr error

	// SpeakCalls records every call to Speak.
	SpeakCalls []SpeakCall

	// StopCallCount records how many times Stop was called.
	StopCallCount int

	current *synth.Options
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return "mock" }

// Available implements synth.Engine.
func (e *Engine) Available(context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Unavailable
}

// Speak implements synth.Engine.
func (e *Engine) Speak(_ context.Context, text string, opts synth.Options) error {
	e.mu.Lock()
	e.SpeakCalls = append(e.SpeakCalls, SpeakCall{Text: text, Opts: opts})
	if e.Unavailable {
		e.mu.Unlock()
		return synth.ErrNotSupported
	}
	if e.SpeakErr != nil {
		err := e.SpeakErr
		e.mu.Unlock()
		return err
	}
	prev := e.current
	e.current = &opts
	e.mu.Unlock()

	if prev != nil && prev.OnStopped != nil {
		prev.OnStopped()
	}
	return nil
}

// Stop implements synth.Engine.
func (e *Engine) Stop(context.Context) error {
	e.mu.Lock()
	e.StopCallCount++
	cur := e.current
	e.current = nil
	e.mu.Unlock()
	if cur != nil && cur.OnStopped != nil {
		cur.OnStopped()
	}
	return nil
}

// IsSpeaking implements synth.Engine.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Finish ends the current utterance with OnDone. It reports whether one was
// playing.
func (e *Engine) Finish() bool {
	cur := e.take()
	if cur == nil {
		return false
	}
	if cur.OnDone != nil {
		cur.OnDone()
	}
	return true
}

// Fail ends the current utterance with OnError.
func (e *Engine) Fail(err error) bool {
	cur := e.take()
	if cur == nil {
		return false
	}
	if cur.OnError != nil {
		cur.OnError(err)
	}
	return true
}

// Calls returns a copy of the recorded Speak calls.
func (e *Engine) Calls() []SpeakCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SpeakCall, len(e.SpeakCalls))
	copy(out, e.SpeakCalls)
	return out
}

func (e *Engine) take() *synth.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.current
	e.current = nil
	return cur
}

var _ synth.Engine = (*Engine)(nil)
