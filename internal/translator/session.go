// Package translator implements the translate-screen session: the text pair,
// the active language pair, voice capture into the input field, translation
// and a bounded history of past translations.
//
// The session is a small state machine:
//
//	Idle -> StartCapture -> Capturing -> transcript -> TextReady
//	TextReady -> Submit -> Translating -> response -> Idle (with output)
//	Capturing -> error -> Idle, Translating -> error -> Idle
//
// Capture and translation are decoupled. A transcript only fills the input
// field; translating it is a separate user action. A failure on either path
// raises a notice and returns the session to a stable state without touching
// the last good output.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/speech"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/provider/translate"
)

// DefaultPair is the language pair of a new session.
var DefaultPair = lang.Pair{Source: lang.English, Target: lang.Thai}

// Speaker is the part of the shared speech controller the session uses.
type Speaker interface {
	Speak(ctx context.Context, u speech.Utterance) error
	Stop(ctx context.Context) error
	IsSpeaking() bool
}

// Option configures a [Session].
type Option func(*Session)

// WithCapture sets the voice-capture backend.
func WithCapture(b capture.Backend) Option {
	return func(s *Session) { s.capture = b }
}

// WithSpeech sets the shared speech controller.
func WithSpeech(sp Speaker) Option {
	return func(s *Session) { s.speaker = sp }
}

// WithNotices sets the sink for user-visible notices. Default: [notice.Discard].
func WithNotices(n notice.Sink) Option {
	return func(s *Session) { s.notices = n }
}

// WithPair sets the initial language pair. Default: [DefaultPair].
func WithPair(p lang.Pair) Option {
	return func(s *Session) { s.initialPair = p }
}

// WithClock overrides the time source for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides how history entry ids are made. Default: random
// UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithProviderName sets the provider label used in metrics and spans.
func WithProviderName(name string) Option {
	return func(s *Session) { s.providerName = name }
}

// Session is one translate-screen interaction. It is safe for concurrent use.
type Session struct {
	provider     translate.Provider
	providerName string
	capture      capture.Backend
	speaker      Speaker
	notices      notice.Sink
	metrics      *observe.Metrics
	now          func() time.Time
	newID        func() string
	initialPair  lang.Pair

	// emitMu serialises change broadcasts so listeners see snapshots in order.
	emitMu sync.Mutex

	mu      sync.Mutex
	state   State
	pair    lang.Pair
	input   string
	output  string
	history *history
	closed  bool

	// seq tags each Submit; a response is committed only while it matches.
	seq      uint64
	inflight context.CancelFunc

	// captureGen tags each StartCapture; results are applied only while it
	// matches.
	captureGen     uint64
	captureSession *capture.Session
	captureStarted time.Time

	listeners map[uint64]func(Snapshot)
	nextSub   uint64
}

// New returns a Session translating through provider.
func New(provider translate.Provider, opts ...Option) *Session {
	s := &Session{
		provider:     provider,
		providerName: "translate",
		notices:      notice.Discard,
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
		initialPair:  DefaultPair,
		history:      newHistory(HistoryLimit),
		listeners:    make(map[uint64]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.pair = s.initialPair
	return s
}

// SetInputText replaces the input field. No length check is applied here;
// the UI boundary truncates to [translate.MaxTextRunes].
func (s *Session) SetInputText(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.input = text
	if s.state.Stable() {
		s.state = stableState(text)
	}
	s.mu.Unlock()
	s.changed()
	return nil
}

// Submit translates the trimmed input with the current pair and blocks until
// the response arrives or ctx ends.
//
// Blank input raises a validation notice and returns [ErrEmptyInput] without
// a request. A Submit while another is in flight returns [ErrBusy]. On
// success the output is overwritten and a history entry is prepended; on
// failure the output keeps its previous value and a notice is raised. Nothing
// is retried.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state {
	case StateTranslating:
		s.mu.Unlock()
		s.raise(ctx, notice.KindWarning, notice.CodeTranslateBusy, "A translation is already in progress.", nil)
		return ErrBusy
	case StateCapturing:
		s.mu.Unlock()
		s.raise(ctx, notice.KindWarning, notice.CodeCaptureBusy, "Finish voice input before translating.", nil)
		return ErrBusy
	}
	text := strings.TrimSpace(s.input)
	if text == "" {
		s.mu.Unlock()
		s.raise(ctx, notice.KindWarning, notice.CodeTranslateEmpty, "Enter some text to translate.", nil)
		return ErrEmptyInput
	}
	s.seq++
	seq := s.seq
	pair := s.pair
	reqCtx, cancel := context.WithCancel(ctx)
	s.inflight = cancel
	s.state = StateTranslating
	s.mu.Unlock()
	defer cancel()
	s.changed()

	s.hintLanguage(ctx, text, pair)

	reqCtx, span := observe.StartSpan(reqCtx, "translator.Submit",
		trace.WithAttributes(
			attribute.String("translate.provider", s.providerName),
			attribute.String("translate.source_lang", string(pair.Source)),
			attribute.String("translate.target_lang", string(pair.Target)),
			attribute.Int("translate.text_runes", len([]rune(text))),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := s.provider.Translate(reqCtx, translate.Request{
		Text:       text,
		SourceLang: pair.Source,
		TargetLang: pair.Target,
	})
	elapsed := time.Since(start)

	s.mu.Lock()
	if s.seq != seq || s.closed {
		s.mu.Unlock()
		observe.Logger(reqCtx).Debug("translator: discarded stale response", "seq", seq)
		span.SetStatus(codes.Error, "superseded")
		return ErrSuperseded
	}
	s.inflight = nil
	s.state = StateIdle
	if err != nil {
		s.mu.Unlock()
		s.metrics.RecordTranslation(ctx, s.providerName, "error", elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.changed()
		s.raise(ctx, notice.KindError, notice.CodeTranslateFailed, translateFailure(err), err)
		return fmt.Errorf("translator: submit: %w", err)
	}
	s.output = resp.Text
	s.history.push(HistoryEntry{
		ID:         s.newID(),
		Original:   text,
		Translated: resp.Text,
		SourceLang: pair.Source,
		TargetLang: pair.Target,
		Timestamp:  s.now(),
	})
	s.mu.Unlock()

	s.metrics.RecordTranslation(ctx, s.providerName, "ok", elapsed.Seconds())
	observe.Logger(reqCtx).Debug("translator: translated", "source", pair.Source, "target", pair.Target, "duration", elapsed)
	s.changed()
	return nil
}

// hintLanguage raises an informational notice when the input looks like it
// is already in the target language. It never blocks the request.
func (s *Session) hintLanguage(ctx context.Context, text string, pair lang.Pair) {
	if pair.Source == pair.Target {
		return
	}
	d := lang.Detect(text)
	if !d.Reliable || d.Code != pair.Target {
		return
	}
	s.raise(ctx, notice.KindInfo, notice.CodeTranslateLanguageHint,
		fmt.Sprintf("The text looks like %s already. Swap languages to translate the other way.", translate.LanguageName(pair.Target)), nil)
}

// Swap exchanges the source and target languages together with the input
// and output text. Swapping twice restores the original.
func (s *Session) Swap() error {
	s.mu.Lock()
	if err := s.stableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pair = s.pair.Swapped()
	s.input, s.output = s.output, s.input
	s.state = stableState(s.input)
	s.mu.Unlock()
	s.changed()
	return nil
}

// SetPair replaces the language pair without touching the text.
func (s *Session) SetPair(p lang.Pair) error {
	s.mu.Lock()
	if err := s.stableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pair = p
	s.mu.Unlock()
	s.changed()
	return nil
}

// Clear empties input and output. History and the language pair stay.
func (s *Session) Clear() error {
	s.mu.Lock()
	if err := s.stableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.input, s.output = "", ""
	s.state = StateIdle
	s.mu.Unlock()
	s.changed()
	return nil
}

// SelectFromHistory restores the texts and language pair of the entry with
// id. The history order is not changed.
func (s *Session) SelectFromHistory(id string) error {
	s.mu.Lock()
	if err := s.stableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	e, ok := s.history.find(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	s.input, s.output = e.Original, e.Translated
	s.pair = lang.Pair{Source: e.SourceLang, Target: e.TargetLang}
	s.state = StateIdle
	s.mu.Unlock()
	s.changed()
	return nil
}

// StartCapture starts voice input in the source language. Any utterance
// that is playing is stopped first so the microphone does not hear it.
//
// Start failures are returned and raised as notices; the session falls back
// to Idle with the input untouched. The transcript of a successful capture
// replaces the input and moves the session to TextReady.
func (s *Session) StartCapture(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.capture == nil {
		s.mu.Unlock()
		err := capture.NewError(capture.KindNotAvailable, "no capture backend", ErrNoCapture)
		s.raiseCapture(ctx, err)
		return err
	}
	switch s.state {
	case StateCapturing:
		s.mu.Unlock()
		err := capture.NewError(capture.KindAlreadyCapturing, "capture already running", nil)
		s.raiseCapture(ctx, err)
		return err
	case StateTranslating:
		s.mu.Unlock()
		s.raise(ctx, notice.KindWarning, notice.CodeTranslateBusy, "Wait for the translation to finish.", nil)
		return ErrBusy
	}
	s.captureGen++
	gen := s.captureGen
	prev := s.state
	s.state = StateCapturing
	s.captureStarted = time.Now()
	backend, hint := s.capture, string(s.pair.Source)
	s.mu.Unlock()
	s.changed()

	if s.speaker != nil {
		if err := s.speaker.Stop(ctx); err != nil {
			slog.Debug("translator: stop speech before capture", "err", err)
		}
	}

	sess, err := backend.Start(ctx, hint, func(r capture.Result) { s.onCaptureResult(context.WithoutCancel(ctx), gen, r) })

	s.mu.Lock()
	if s.captureGen != gen {
		s.mu.Unlock()
		if err == nil {
			_ = backend.Stop(sess)
		}
		return ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, capture.ErrAlreadyCapturing) {
			s.state = prev
		} else {
			s.state = StateIdle
		}
		s.mu.Unlock()
		s.recordCapture(ctx, backend.Name(), err)
		s.changed()
		s.raiseCapture(ctx, err)
		return fmt.Errorf("translator: start capture: %w", err)
	}
	// The result may already have been delivered.
	if s.state == StateCapturing {
		s.captureSession = sess
	}
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Session) onCaptureResult(ctx context.Context, gen uint64, r capture.Result) {
	s.mu.Lock()
	if s.captureGen != gen || s.closed || s.state != StateCapturing {
		s.mu.Unlock()
		slog.Debug("translator: dropped capture result of a replaced session", "session", r.SessionID)
		return
	}
	s.captureSession = nil
	backend := s.capture.Name()
	if r.Err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.recordCapture(ctx, backend, r.Err)
		s.changed()
		s.raiseCapture(ctx, r.Err)
		return
	}
	if t := strings.TrimSpace(r.Transcript); t != "" {
		s.input = t
	}
	s.state = stableState(s.input)
	s.mu.Unlock()
	s.recordCapture(ctx, backend, nil)
	s.changed()
}

// StopCapture asks the backend to finish the active capture. A transcript
// it already has is still delivered. Without an active capture it is a no-op.
func (s *Session) StopCapture() error {
	s.mu.Lock()
	sess, backend := s.captureSession, s.capture
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	if err := backend.Stop(sess); err != nil {
		return fmt.Errorf("translator: stop capture: %w", err)
	}
	return nil
}

// SpeakInput speaks the input text in the source language.
func (s *Session) SpeakInput(ctx context.Context) error {
	s.mu.Lock()
	text, code := s.input, s.pair.Source
	s.mu.Unlock()
	return s.speak(ctx, text, code)
}

// SpeakOutput speaks the output text in the target language.
func (s *Session) SpeakOutput(ctx context.Context) error {
	s.mu.Lock()
	text, code := s.output, s.pair.Target
	s.mu.Unlock()
	return s.speak(ctx, text, code)
}

// StopSpeaking stops whatever the shared controller is playing.
func (s *Session) StopSpeaking(ctx context.Context) error {
	if s.speaker == nil {
		return ErrNoSpeech
	}
	return s.speaker.Stop(ctx)
}

func (s *Session) speak(ctx context.Context, text string, code lang.Code) error {
	if s.speaker == nil {
		return ErrNoSpeech
	}
	return s.speaker.Speak(ctx, speech.Utterance{Text: text, Language: code, Source: speech.SourceTranslator})
}

// Reset discards an in-flight translation and an active capture, clears both
// texts and the history, and restores the initial language pair.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sess := s.abortLocked()
	s.input, s.output = "", ""
	s.pair = s.initialPair
	s.history.reset()
	s.state = StateIdle
	s.mu.Unlock()
	s.stopCapture(sess)
	s.changed()
	return nil
}

// Close tears the session down. An in-flight response is discarded and an
// active capture is stopped. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	sess := s.abortLocked()
	s.closed = true
	s.state = StateIdle
	s.mu.Unlock()
	s.stopCapture(sess)

	s.emitMu.Lock()
	s.mu.Lock()
	clear(s.listeners)
	s.mu.Unlock()
	s.emitMu.Unlock()
	return nil
}

// abortLocked invalidates the in-flight request and capture. It returns the
// capture session the caller must stop after unlocking.
func (s *Session) abortLocked() *capture.Session {
	s.seq++
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.captureGen++
	sess := s.captureSession
	s.captureSession = nil
	return sess
}

func (s *Session) stopCapture(sess *capture.Session) {
	if sess == nil {
		return
	}
	if err := s.capture.Stop(sess); err != nil {
		slog.Debug("translator: stop capture on teardown", "err", err)
	}
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:   s.state,
		Pair:    s.pair,
		Input:   s.input,
		Output:  s.output,
		History: s.history.list(),
	}
	if s.captureSession != nil {
		snap.CaptureSession = s.captureSession.ID()
	}
	s.mu.Unlock()
	if s.speaker != nil {
		snap.Speaking = s.speaker.IsSpeaking()
	}
	return snap
}

// History returns the history, newest first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.list()
}

// OnChange registers fn to receive a snapshot after every change. fn must
// not call methods that modify the session. The returned function
// unregisters fn.
func (s *Session) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Changed re-broadcasts the current snapshot, for example after the shared
// speech controller changed its speaking flag.
func (s *Session) Changed() { s.changed() }

func (s *Session) changed() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) stableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.state.Stable() {
		return ErrBusy
	}
	return nil
}

func stableState(input string) State {
	if strings.TrimSpace(input) == "" {
		return StateIdle
	}
	return StateTextReady
}

func (s *Session) recordCapture(ctx context.Context, backend string, err error) {
	outcome := "completed"
	if err != nil {
		outcome = capture.KindOf(err).String()
	}
	s.mu.Lock()
	started := s.captureStarted
	s.mu.Unlock()
	s.metrics.RecordCapture(ctx, backend, outcome, time.Since(started).Seconds())
}

func (s *Session) raiseCapture(ctx context.Context, err error) {
	var (
		code = notice.CodeCaptureFailed
		msg  = "Voice input failed. Please try again."
	)
	switch capture.KindOf(err) {
	case capture.KindPermissionDenied:
		code, msg = notice.CodeCapturePermission, "Microphone access was denied."
	case capture.KindNotAvailable:
		code, msg = notice.CodeCaptureUnavailable, "Voice input is not available on this device."
	case capture.KindAlreadyCapturing:
		code, msg = notice.CodeCaptureBusy, "Voice input is already running."
	}
	s.raise(ctx, notice.KindError, code, msg, err)
}

func (s *Session) raise(ctx context.Context, kind notice.Kind, code, msg string, err error) {
	s.metrics.RecordNotice(ctx, code)
	s.notices.Notify(ctx, notice.Notice{Kind: kind, Code: code, Message: msg, Err: err})
}

func translateFailure(err error) string {
	var apiErr *translate.Error
	switch {
	case errors.Is(err, translate.ErrInvalidRequest):
		return fmt.Sprintf("Text must be 1 to %d characters.", translate.MaxTextRunes)
	case errors.Is(err, context.DeadlineExceeded):
		return "The translation service did not answer in time."
	case errors.As(err, &apiErr) && apiErr.Temporary():
		return "The translation service is busy. Please try again."
	default:
		return "Translation failed. Please try again."
	}
}
