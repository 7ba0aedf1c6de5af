// Package browser implements capture.Backend over the Web Speech API of a
// connected browser tab.
//
// The backend never touches audio itself. Start sends a recognition.start
// command carrying the session token; the tab creates a single-shot
// SpeechRecognition (continuous=false, no interim results), and its
// onstart/onresult/onerror/onend events come back as frames that the bridge
// hands to [Backend.HandleFrame]. Frames whose token is not the active
// session are dropped.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/webspeech"
)

// Name is the backend name reported in logs and metrics.
const Name = "browser"

// Option is a functional option for [New].
type Option func(*Backend)

// WithStopGrace bounds how long a stopped session waits for the tab's final
// events. Defaults to capture.DefaultStopGrace.
func WithStopGrace(d time.Duration) Option {
	return func(b *Backend) { b.stopGrace = d }
}

// WithSendTimeout bounds each command write. Defaults to 5 s.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Backend) { b.sendTimeout = d }
}

// Backend implements capture.Backend for one browser tab.
type Backend struct {
	sender      webspeech.Sender
	tracker     *capture.Tracker
	stopGrace   time.Duration
	sendTimeout time.Duration

	available atomic.Bool
}

// New returns a Backend that sends commands through sender. The backend
// reports itself unavailable until [Backend.SetAvailable] is called with the
// tab's capability answer.
func New(sender webspeech.Sender, opts ...Option) *Backend {
	b := &Backend{
		sender:      sender,
		tracker:     capture.NewTracker(Name),
		stopGrace:   capture.DefaultStopGrace,
		sendTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements capture.Backend.
func (b *Backend) Name() string { return Name }

// SetAvailable records whether the tab exposes SpeechRecognition.
func (b *Backend) SetAvailable(ok bool) { b.available.Store(ok) }

// Available implements capture.Backend.
func (b *Backend) Available(context.Context) bool { return b.available.Load() }

// Start implements capture.Backend.
func (b *Backend) Start(ctx context.Context, languageHint string, onResult capture.ResultFunc) (*capture.Session, error) {
	s, err := b.tracker.Begin(languageHint, onResult)
	if err != nil {
		return s, err
	}
	if !b.Available(ctx) {
		b.tracker.Reject(s.ID())
		return s, capture.NewError(capture.KindNotAvailable, "SpeechRecognition is not exposed by this browser", nil)
	}

	err = b.send(ctx, webspeech.Frame{
		Type:  webspeech.TypeRecognitionStart,
		Token: s.ID(),
		Lang:  lang.RecognitionLocaleForHint(languageHint),
	})
	if err != nil {
		b.tracker.Reject(s.ID())
		return s, capture.NewError(capture.KindNotAvailable, "browser disconnected", err)
	}
	return s, nil
}

// Stop implements capture.Backend.
func (b *Backend) Stop(s *capture.Session) error {
	if s == nil || !b.tracker.MarkStopping(s.ID(), b.stopGrace) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
	defer cancel()
	if err := b.send(ctx, webspeech.Frame{Type: webspeech.TypeRecognitionStop, Token: s.ID()}); err != nil {
		// Without the tab there is nothing left to flush.
		b.tracker.Complete(s.ID(), "")
		return fmt.Errorf("browser: send stop: %w", err)
	}
	return nil
}

// Close implements capture.Backend. It aborts the active session and asks the
// tab to stop listening; the tab may already be gone.
func (b *Backend) Close() error {
	s := b.tracker.Abort()
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
	defer cancel()
	_ = b.send(ctx, webspeech.Frame{Type: webspeech.TypeRecognitionStop, Token: s.ID()})
	return nil
}

// Current returns the active session, or nil.
func (b *Backend) Current() *capture.Session { return b.tracker.Current() }

// HandleFrame applies a recognition event from the tab. It reports whether
// the frame was accepted; stale and unrelated frames return false.
func (b *Backend) HandleFrame(f webspeech.Frame) bool {
	switch f.Type {
	case webspeech.TypeRecognitionStarted:
		return b.tracker.MarkListening(f.Token)

	case webspeech.TypeRecognitionResult:
		return b.tracker.Complete(f.Token, strings.TrimSpace(f.Transcript))

	case webspeech.TypeRecognitionError:
		return b.tracker.Fail(f.Token, classify(f.Error))

	case webspeech.TypeRecognitionEnd:
		// onend without a preceding result: a stop request ends cleanly, an
		// unprompted end means the recognizer heard nothing usable.
		if b.tracker.Stopping(f.Token) {
			return b.tracker.Complete(f.Token, "")
		}
		return b.tracker.Fail(f.Token, capture.NewError(capture.KindRecognition, webspeech.ErrCodeNoSpeech, nil))
	}
	return false
}

func (b *Backend) send(ctx context.Context, f webspeech.Frame) error {
	if b.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.sendTimeout)
		defer cancel()
	}
	return b.sender.Send(ctx, f)
}

// classify maps a SpeechRecognitionErrorEvent code onto the capture error
// taxonomy.
func classify(code string) *capture.Error {
	switch {
	case webspeech.PermissionDenied(code):
		return capture.NewError(capture.KindPermissionDenied, code, nil)
	case code == webspeech.ErrCodeNotSupported:
		return capture.NewError(capture.KindNotAvailable, code, nil)
	default:
		return capture.NewError(capture.KindRecognition, code, nil)
	}
}

var _ capture.Backend = (*Backend)(nil)
