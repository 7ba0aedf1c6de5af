// Package browser implements synth.Engine over the speechSynthesis API of a
// connected browser tab.
//
// Each Speak is sent as a speech.speak command with a fresh token; the tab
// answers with speech.done, speech.stopped or speech.error for that token.
// Only the most recent token is tracked, so events from an utterance that was
// replaced are dropped after its OnStopped has already been reported.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/langswap/pkg/provider/synth"
	"github.com/MrWong99/langswap/pkg/webspeech"
)

// Name is the engine name reported in logs and metrics.
const Name = "browser"

// Engine implements synth.Engine for one browser tab.
type Engine struct {
	sender      webspeech.Sender
	sendTimeout time.Duration

	available atomic.Bool

	mu      sync.Mutex
	seq     uint64
	current *utterance
}

type utterance struct {
	token uint64
	opts  synth.Options
}

// New returns an Engine sending through sender. It reports itself unavailable
// until [Engine.SetAvailable] records the tab's capability answer.
func New(sender webspeech.Sender) *Engine {
	return &Engine{sender: sender, sendTimeout: 5 * time.Second}
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return Name }

// SetAvailable records whether the tab exposes speechSynthesis.
func (e *Engine) SetAvailable(ok bool) { e.available.Store(ok) }

// Available implements synth.Engine.
func (e *Engine) Available(context.Context) bool { return e.available.Load() }

// Speak implements synth.Engine.
func (e *Engine) Speak(ctx context.Context, text string, opts synth.Options) error {
	if !e.Available(ctx) {
		return synth.ErrNotSupported
	}

	e.mu.Lock()
	prev := e.current
	e.seq++
	u := &utterance{token: e.seq, opts: opts}
	e.current = u
	e.mu.Unlock()

	if prev != nil && prev.opts.OnStopped != nil {
		prev.opts.OnStopped()
	}

	err := e.send(ctx, webspeech.Frame{
		Type:  webspeech.TypeSpeechSpeak,
		Token: u.token,
		Text:  text,
		Lang:  opts.Language,
		Rate:  opts.Rate,
		Pitch: opts.Pitch,
	})
	if err != nil {
		e.clear(u.token)
		return fmt.Errorf("browser: send speak: %w", err)
	}
	return nil
}

// Stop implements synth.Engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	u := e.current
	e.current = nil
	e.mu.Unlock()
	if u == nil {
		return nil
	}
	if u.opts.OnStopped != nil {
		u.opts.OnStopped()
	}
	if err := e.send(ctx, webspeech.Frame{Type: webspeech.TypeSpeechStop, Token: u.token}); err != nil {
		return fmt.Errorf("browser: send stop: %w", err)
	}
	return nil
}

// IsSpeaking implements synth.Engine.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// HandleFrame applies a synthesis event from the tab and reports whether it
// belonged to the current utterance.
func (e *Engine) HandleFrame(f webspeech.Frame) bool {
	switch f.Type {
	case webspeech.TypeSpeechStarted:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.current != nil && e.current.token == f.Token
	case webspeech.TypeSpeechDone, webspeech.TypeSpeechStopped, webspeech.TypeSpeechError:
	default:
		return false
	}

	u := e.clear(f.Token)
	if u == nil {
		return false
	}
	switch f.Type {
	case webspeech.TypeSpeechDone:
		if u.opts.OnDone != nil {
			u.opts.OnDone()
		}
	case webspeech.TypeSpeechStopped:
		if u.opts.OnStopped != nil {
			u.opts.OnStopped()
		}
	case webspeech.TypeSpeechError:
		if u.opts.OnError != nil {
			u.opts.OnError(speechError(f.Error))
		}
	}
	return true
}

// clear detaches and returns the current utterance if it carries token.
func (e *Engine) clear(token uint64) *utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.token != token {
		return nil
	}
	u := e.current
	e.current = nil
	return u
}

func (e *Engine) send(ctx context.Context, f webspeech.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return e.sender.Send(ctx, f)
}

// speechError maps a SpeechSynthesisErrorEvent code to an error. Codes for an
// utterance cut short by the tab itself count as failures too.
func speechError(code string) error {
	switch code {
	case webspeech.ErrCodeNotSupported, "synthesis-unavailable", "language-unavailable", "voice-unavailable":
		return fmt.Errorf("%w: %s", synth.ErrNotSupported, code)
	case "":
		return errors.New("browser: speech synthesis failed")
	default:
		return fmt.Errorf("browser: speech synthesis failed: %s", code)
	}
}

var _ synth.Engine = (*Engine)(nil)
