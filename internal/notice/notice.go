// Package notice carries user-visible notices out of the pipeline.
//
// Components never show anything themselves. Capture, translation and
// synthesis failures, validation problems and hints are raised as a [Notice]
// on a [Sink]; the platform decides how to surface them (a toast in the
// browser tab, a desktop notification, a log line).
package notice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Kind is the severity of a notice.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notice codes. The bridge forwards them to the browser tab, which picks a
// localised message by code and falls back to Message.
const (
	CodeCapturePermission  = "capture.permission"
	CodeCaptureUnavailable = "capture.unavailable"
	CodeCaptureBusy        = "capture.busy"
	CodeCaptureFailed      = "capture.failed"

	CodeTranslateEmpty        = "translate.empty"
	CodeTranslateBusy         = "translate.busy"
	CodeTranslateFailed       = "translate.failed"
	CodeTranslateLanguageHint = "translate.language_hint"

	CodeSpeechUnsupported = "speech.unsupported"
	CodeSpeechFailed      = "speech.failed"

	CodeLessonMutePersist = "lesson.mute_persist"
)

// Notice is one user-visible message.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Err is the underlying failure, if any. It is logged but not sent to
	// the user.
	Err error `json:"-"`
}

// Sink receives notices. Notify must not block for long; it is called from
// state-machine callbacks.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, n Notice)

// Notify calls fn.
func (fn SinkFunc) Notify(ctx context.Context, n Notice) { fn(ctx, n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(context.Context, Notice) {})

// LogSink writes notices to a slog.Logger. Errors log at Warn, everything
// else at Info.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements [Sink].
func (s LogSink) Notify(ctx context.Context, n Notice) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	if n.Kind == KindError || n.Kind == KindWarning {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("code", n.Code),
		slog.String("kind", string(n.Kind)),
	}
	if n.Err != nil {
		attrs = append(attrs, slog.Any("err", n.Err))
	}
	l.LogAttrs(ctx, level, n.Message, attrs...)
}

// Multi fans a notice out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multi(out)
}

type multi []Sink

func (m multi) Notify(ctx context.Context, n Notice) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// Recorder collects notices in memory. It is meant for tests and for the
// state snapshot of the device HTTP API.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements [Sink].
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Codes returns the codes of everything recorded so far.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, len(r.notices))
	for i, n := range r.notices {
		codes[i] = n.Code
	}
	return codes
}

// Has reports whether a notice with code was recorded.
func (r *Recorder) Has(code string) bool {
	for _, c := range r.Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
