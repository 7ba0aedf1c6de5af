package capture

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateListening
	StateStopping
	StateCompleted
	StateFailed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Session is one voice-capture attempt. Its state is owned by the backend's
// [Tracker]; callers only read it.
type Session struct {
	id           uint64
	backend      string
	languageHint string

	mu    sync.Mutex
	state State
}

// ID returns the session token. Tokens increase monotonically per backend.
func (s *Session) ID() uint64 { return s.id }

// Backend returns the name of the backend that owns the session.
func (s *Session) Backend() string { return s.backend }

// LanguageHint returns the hint the session was started with.
func (s *Session) LanguageHint() string { return s.languageHint }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ErrorKind classifies capture failures.
type ErrorKind int

const (
	KindRecognition ErrorKind = iota
	KindPermissionDenied
	KindNotAvailable
	KindAlreadyCapturing
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotAvailable:
		return "not_available"
	case KindAlreadyCapturing:
		return "already_capturing"
	default:
		return "recognition_error"
	}
}

// Sentinel errors, one per [ErrorKind]. Use errors.Is against these.
var (
	ErrPermissionDenied = errors.New("capture: permission denied")
	ErrNotAvailable     = errors.New("capture: speech recognition not available")
	ErrAlreadyCapturing = errors.New("capture: already capturing")
	ErrRecognition      = errors.New("capture: recognition error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindNotAvailable:
		return ErrNotAvailable
	case KindAlreadyCapturing:
		return ErrAlreadyCapturing
	default:
		return ErrRecognition
	}
}

// Error is the classified error reported for a failed session.
type Error struct {
	Kind ErrorKind

	// Detail is the platform's own description (e.g. "no-speech").
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// NewError returns an *Error of the given kind.
func NewError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches the sentinel belonging to e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the [ErrorKind] of err. Errors that are not capture errors
// are classified as [KindRecognition].
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNotAvailable):
		return KindNotAvailable
	case errors.Is(err, ErrAlreadyCapturing):
		return KindAlreadyCapturing
	}
	return KindRecognition
}

// Classify wraps err as an *Error, keeping its kind if it already has one.
func Classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return NewError(KindOf(err), "", err)
}
