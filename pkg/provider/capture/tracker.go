package capture

import (
	"sync"
	"time"
)

// DefaultStopGrace bounds how long a stopping session waits for the platform
// to report its final transcript before it is completed without one.
const DefaultStopGrace = 3 * time.Second

// Tracker owns the single capture slot of a backend. It hands out monotonic
// session tokens and applies platform events only when they carry the token of
// the active session, so a late event from an earlier session can never
// complete a newer one. Every method is safe to call from any goroutine.
type Tracker struct {
	backend string

	mu       sync.Mutex
	seq      uint64
	active   *Session
	onResult ResultFunc
	timer    *time.Timer
}

// NewTracker returns a Tracker for the named backend.
func NewTracker(backend string) *Tracker {
	return &Tracker{backend: backend}
}

// Begin reserves the slot for a new session in the Requesting state. If a
// non-terminal session exists, Begin returns a detached Failed session and an
// error wrapping [ErrAlreadyCapturing]; the active session is not touched.
func (t *Tracker) Begin(languageHint string, onResult ResultFunc) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return &Session{backend: t.backend, languageHint: languageHint, state: StateFailed},
			NewError(KindAlreadyCapturing, "", nil)
	}

	t.seq++
	s := &Session{
		id:           t.seq,
		backend:      t.backend,
		languageHint: languageHint,
		state:        StateRequesting,
	}
	t.active = s
	t.onResult = onResult
	return s, nil
}

// Current returns the active session, or nil.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// IsCurrent reports whether id belongs to the active session.
func (t *Tracker) IsCurrent(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil && t.active.id == id
}

// MarkListening moves the session from Requesting to Listening once the
// platform confirms audio capture started.
func (t *Tracker) MarkListening(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.id != id {
		return false
	}
	if t.active.State() != StateRequesting {
		return false
	}
	t.active.setState(StateListening)
	return true
}

// MarkStopping moves the session to Stopping. If the platform has not
// finished the session within grace, it is completed with an empty
// transcript. A non-positive grace uses [DefaultStopGrace].
func (t *Tracker) MarkStopping(id uint64, grace time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.id != id {
		return false
	}
	switch t.active.State() {
	case StateRequesting, StateListening:
	default:
		return false
	}
	t.active.setState(StateStopping)

	if grace <= 0 {
		grace = DefaultStopGrace
	}
	t.timer = time.AfterFunc(grace, func() { t.Complete(id, "") })
	return true
}

// Stopping reports whether id is the active session and a stop was requested.
func (t *Tracker) Stopping(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil && t.active.id == id && t.active.State() == StateStopping
}

// Complete ends the session successfully and delivers the transcript. It
// returns false when id is not the active session (the event is stale).
func (t *Tracker) Complete(id uint64, transcript string) bool {
	fn, s, ok := t.finish(id, StateCompleted)
	if !ok {
		return false
	}
	if fn != nil {
		fn(Result{SessionID: s.id, Transcript: transcript})
	}
	return true
}

// Fail ends the session with err and delivers it. err is classified with
// [Classify]. It returns false when id is not the active session.
func (t *Tracker) Fail(id uint64, err error) bool {
	fn, s, ok := t.finish(id, StateFailed)
	if !ok {
		return false
	}
	if fn != nil {
		fn(Result{SessionID: s.id, Err: Classify(err)})
	}
	return true
}

// Reject ends the session as Failed without delivering anything. Backends use
// it when a failure is reported synchronously from Start.
func (t *Tracker) Reject(id uint64) bool {
	_, _, ok := t.finish(id, StateFailed)
	return ok
}

// Abort rejects whatever session is active. It is used on teardown.
func (t *Tracker) Abort() *Session {
	t.mu.Lock()
	s := t.active
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	t.Reject(s.id)
	return s
}

func (t *Tracker) finish(id uint64, st State) (ResultFunc, *Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.id != id {
		return nil, nil, false
	}
	s, fn := t.active, t.onResult
	s.setState(st)
	t.active = nil
	t.onResult = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return fn, s, true
}
