// Package capture defines the Backend interface for voice-capture backends.
//
// A capture backend wraps a platform's speech-recognition capability (the
// Web Speech API of a browser tab, or a native on-device recognizer) behind
// one contract. The central abstraction is [Session]: one user-initiated
// attempt to obtain a transcript. A backend owns at most one non-terminal
// session at a time; starting a second one fails with [ErrAlreadyCapturing]
// and leaves the first untouched.
//
// Results are push-based. The [ResultFunc] passed to Start is invoked exactly
// once per session with either a transcript or a classified error; events
// that arrive after that terminal event are discarded. Backends use a
// [Tracker] to get this guarantee.
package capture

import "context"

// Result is the single terminal event of a capture session.
type Result struct {
	// SessionID identifies the session the result belongs to.
	SessionID uint64

	// Transcript is the recognised text. It may be empty when the user
	// stopped the session before anything was recognised.
	Transcript string

	// Err is non-nil when recognition failed. It is always a *[Error].
	Err error
}

// ResultFunc receives the terminal event of a session. It is called at most
// once per session, on an arbitrary goroutine, and must not block.
type ResultFunc func(Result)

// Backend is the abstraction over a platform speech-recognition capability.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and metrics ("browser", "device").
	Name() string

	// Available probes whether the platform exposes speech recognition at all.
	// It fails closed: any doubt yields false, never an error.
	Available(ctx context.Context) bool

	// Start asks the platform to begin listening. languageHint is either a
	// two-letter code ("th") or a full locale ("th-TH").
	//
	// Start always returns a non-nil Session. When err is non-nil the session
	// is already Failed, the failure is fully reported by err and onResult is
	// never called for it. When another session is still active, err wraps
	// [ErrAlreadyCapturing] and the active session is not modified.
	Start(ctx context.Context, languageHint string, onResult ResultFunc) (*Session, error)

	// Stop requests graceful termination of s. Any transcript the platform
	// has already buffered is still delivered, after which s becomes
	// Completed. Stop returns before that happens. Stopping a session that is
	// not active is a no-op.
	Stop(s *Session) error

	// Close aborts any active session without delivering a result and
	// releases platform resources.
	Close() error
}
