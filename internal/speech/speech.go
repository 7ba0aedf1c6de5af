// Package speech owns the app-wide speech-synthesis slot.
//
// A [Controller] wraps one platform [synth.Engine] and guarantees that at
// most one utterance is audible at a time. Speak is cancel-and-replace: the
// active utterance is stopped before the new one is dispatched, so the most
// recent request always wins and nothing is queued. The translator screen and
// the lesson flashcards share a single Controller.
//
// Every utterance gets a token. The done, stopped and error callbacks of the
// engine all funnel into one finish step that only acts if the token is still
// current, so the speaking flag resets exactly once per utterance even when a
// platform fires several terminal callbacks.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/synth"
)

// ErrEmptyText is returned by Speak for blank text.
var ErrEmptyText = errors.New("speech: empty text")

// Source names the screen that issued an utterance.
type Source string

const (
	SourceTranslator Source = "translator"
	SourceLesson     Source = "lesson"
)

// Utterance is one request to speak text.
type Utterance struct {
	Text     string
	Language lang.Code

	// Rate and Pitch default to the controller's configured values when zero.
	Rate  float64
	Pitch float64

	Source Source
}

// Outcome is how an utterance ended.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeStopped Outcome = "stopped"
	OutcomeError   Outcome = "error"
)

// Option configures a [Controller].
type Option func(*Controller)

// WithNotices sets the sink for synthesis failures. Default: [notice.Discard].
func WithNotices(s notice.Sink) Option {
	return func(c *Controller) { c.notices = s }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDefaults sets the rate and pitch used when an Utterance leaves them
// zero. Non-positive values are ignored.
func WithDefaults(rate, pitch float64) Option {
	return func(c *Controller) {
		if rate > 0 {
			c.rate = rate
		}
		if pitch > 0 {
			c.pitch = pitch
		}
	}
}

// Controller serialises all spoken output. It is safe for concurrent use.
type Controller struct {
	engine  synth.Engine
	notices notice.Sink
	metrics *observe.Metrics
	rate    float64
	pitch   float64

	// dispatchMu orders Speak and Stop calls against each other. It is never
	// taken by engine callbacks.
	dispatchMu sync.Mutex

	// emitMu keeps a state change and its listener broadcast together so
	// listeners see changes in order.
	emitMu sync.Mutex

	mu        sync.Mutex
	seq       uint64
	active    *active
	listeners map[uint64]func(speaking bool)
	nextSub   uint64
}

type active struct {
	token     uint64
	utterance Utterance
	ctx       context.Context
}

// New returns a Controller speaking through engine.
func New(engine synth.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:    engine,
		notices:   notice.Discard,
		rate:      1,
		pitch:     1,
		listeners: make(map[uint64]func(bool)),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SetDefaults replaces the rate and pitch used for utterances that leave them
// unset. Non-positive values keep the current setting. The active utterance is
// not affected.
func (c *Controller) SetDefaults(rate, pitch float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rate > 0 {
		c.rate = rate
	}
	if pitch > 0 {
		c.pitch = pitch
	}
}

// Engine returns the wrapped engine.
func (c *Controller) Engine() synth.Engine { return c.engine }

// Available reports whether the platform can speak at all.
func (c *Controller) Available(ctx context.Context) bool { return c.engine.Available(ctx) }

// Speak stops the active utterance, if any, and starts u. The speaking flag is
// set before the engine is called. Speak returns once the utterance is
// dispatched; how it ends is reported through [Controller.OnSpeakingChange]
// and, for failures, a notice.
//
// A language code the platform does not know falls back to the default
// synthesis locale instead of failing.
func (c *Controller) Speak(ctx context.Context, u Utterance) error {
	u.Text = strings.TrimSpace(u.Text)
	if u.Text == "" {
		return ErrEmptyText
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	_ = c.stopActive(ctx)

	if !c.engine.Available(ctx) {
		c.raise(ctx, u.Source, synth.ErrNotSupported)
		return synth.ErrNotSupported
	}

	c.mu.Lock()
	if u.Rate <= 0 {
		u.Rate = c.rate
	}
	if u.Pitch <= 0 {
		u.Pitch = c.pitch
	}
	c.mu.Unlock()

	cbCtx := context.WithoutCancel(ctx)
	c.emitMu.Lock()
	c.mu.Lock()
	c.seq++
	token := c.seq
	c.active = &active{token: token, utterance: u, ctx: cbCtx}
	c.mu.Unlock()
	c.broadcast(true)
	c.emitMu.Unlock()
	c.metrics.ActiveUtterances.Add(cbCtx, 1)

	locale := lang.SynthesisLocale(u.Language)
	slog.Debug("speech: speak", "token", token, "source", u.Source, "locale", locale, "engine", c.engine.Name())

	err := c.engine.Speak(ctx, u.Text, synth.Options{
		Language:  locale,
		Rate:      u.Rate,
		Pitch:     u.Pitch,
		OnDone:    func() { c.finish(token, OutcomeDone, nil) },
		OnStopped: func() { c.finish(token, OutcomeStopped, nil) },
		OnError:   func(err error) { c.finish(token, OutcomeError, err) },
	})
	if err != nil {
		c.finish(token, OutcomeError, err)
		return fmt.Errorf("speech: speak: %w", err)
	}
	return nil
}

// Stop interrupts the active utterance. Stopping when nothing is active is a
// no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if err := c.stopActive(ctx); err != nil {
		return fmt.Errorf("speech: stop: %w", err)
	}
	return nil
}

// stopActive finishes the active utterance as stopped and tells the engine to
// stop. The flag is reset before the engine call returns, so callers never
// observe two active utterances. Callers hold dispatchMu.
func (c *Controller) stopActive(ctx context.Context) error {
	c.mu.Lock()
	a := c.active
	c.mu.Unlock()
	if a == nil {
		return nil
	}
	c.finish(a.token, OutcomeStopped, nil)
	if err := c.engine.Stop(ctx); err != nil {
		slog.Warn("speech: engine stop failed", "engine", c.engine.Name(), "err", err)
		return err
	}
	return nil
}

// IsSpeaking reports whether an utterance is active.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Active returns the active utterance.
func (c *Controller) Active() (Utterance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Utterance{}, false
	}
	return c.active.utterance, true
}

// OnSpeakingChange registers fn to be called whenever the speaking flag
// changes. fn runs synchronously on the goroutine that caused the change, in
// the order of the changes, and must not call Speak or Stop. The returned function unregisters fn.
func (c *Controller) OnSpeakingChange(fn func(speaking bool)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// finish ends the utterance with token. Later calls for the same token, and
// calls for tokens that are no longer current, do nothing.
func (c *Controller) finish(token uint64, outcome Outcome, err error) bool {
	c.emitMu.Lock()
	c.mu.Lock()
	a := c.active
	if a == nil || a.token != token {
		c.mu.Unlock()
		c.emitMu.Unlock()
		slog.Debug("speech: dropped stale callback", "token", token, "outcome", outcome)
		return false
	}
	c.active = nil
	c.mu.Unlock()
	c.broadcast(false)
	c.emitMu.Unlock()

	c.metrics.ActiveUtterances.Add(a.ctx, -1)
	c.metrics.RecordUtterance(a.ctx, string(a.utterance.Source), string(outcome))

	if outcome == OutcomeError {
		c.raise(a.ctx, a.utterance.Source, err)
	}
	return true
}

func (c *Controller) broadcast(speaking bool) {
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(speaking)
	}
}

func (c *Controller) raise(ctx context.Context, source Source, err error) {
	n := notice.Notice{Kind: notice.KindError, Code: notice.CodeSpeechFailed, Message: "Speech playback failed.", Err: err}
	if errors.Is(err, synth.ErrNotSupported) {
		n.Code = notice.CodeSpeechUnsupported
		n.Message = "Speech playback is not supported on this device."
	}
	slog.Warn("speech: utterance failed", "source", source, "engine", c.engine.Name(), "err", err)
	c.metrics.RecordNotice(ctx, n.Code)
	c.notices.Notify(ctx, n)
}
