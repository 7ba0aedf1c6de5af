package translator

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/langswap/pkg/lang"
)

// HistoryLimit is the number of translations kept in the history ring.
const HistoryLimit = 10

var (
	// ErrEmptyInput is returned by Submit when the input is blank after
	// trimming. No request is sent.
	ErrEmptyInput = errors.New("translator: input is empty")

	// ErrBusy is returned when an operation needs a stable state but a
	// capture or translation is in progress.
	ErrBusy = errors.New("translator: operation in progress")

	// ErrUnknownEntry is returned by SelectFromHistory for an id that is not
	// in the history.
	ErrUnknownEntry = errors.New("translator: unknown history entry")

	// ErrNoCapture and ErrNoSpeech are returned when the session was built
	// without the respective collaborator.
	ErrNoCapture = errors.New("translator: no capture backend")
	ErrNoSpeech  = errors.New("translator: no speech controller")

	// ErrSuperseded is returned by Submit when the session was reset or
	// closed while the request was in flight. The response was discarded.
	ErrSuperseded = errors.New("translator: response discarded")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("translator: session closed")
)

// State is the state of a [Session].
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateTextReady
	StateTranslating
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTextReady:
		return "text_ready"
	case StateTranslating:
		return "translating"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so snapshots carry the name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateTranslating; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("translator: unknown state %q", b)
}

// Stable reports whether s allows Swap, Clear and SelectFromHistory.
func (s State) Stable() bool { return s == StateIdle || s == StateTextReady }

// HistoryEntry is an immutable record of one successful translation.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	SourceLang lang.Code `json:"source_lang"`
	TargetLang lang.Code `json:"target_lang"`
	Timestamp  time.Time `json:"timestamp"`
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	State  State     `json:"state"`
	Pair   lang.Pair `json:"pair"`
	Input  string    `json:"input"`
	Output string    `json:"output"`

	// History is newest first.
	History []HistoryEntry `json:"history"`

	// CaptureSession is the id of the active capture session, or 0.
	CaptureSession uint64 `json:"capture_session,omitempty"`

	// Speaking mirrors the shared speech controller.
	Speaking bool `json:"speaking"`
}
