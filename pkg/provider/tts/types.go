package tts

import (
	"errors"
	"strings"
	"sync"

	"github.com/MrWong99/langswap/pkg/audio"
)

// ErrEmptyText is returned by Synthesize when the request has no text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request describes one utterance to synthesise.
type Request struct {
	// Text is the text to speak.
	Text string

	// Language is the BCP-47 locale of Text (e.g., "th-TH"). Providers reduce
	// it to whatever their API accepts.
	Language string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider's default, where it has one.
	Voice string
}

// Validate reports whether the request can be synthesised.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// Utterance is the in-flight result of one Synthesize call.
type Utterance struct {
	// Format describes the PCM on Audio.
	Format audio.Format

	// Audio yields 16-bit little-endian PCM chunks. Closed by the provider.
	Audio <-chan []byte

	mu  sync.Mutex
	err error
}

// NewUtterance returns an Utterance reading from ch.
func NewUtterance(f audio.Format, ch <-chan []byte) *Utterance {
	return &Utterance{Format: f, Audio: ch}
}

// Err returns the error that ended the stream early, or nil. Only meaningful
// once Audio has been closed.
func (u *Utterance) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// SetErr records a mid-stream failure. Providers call it before closing Audio.
// Only the first error is kept.
func (u *Utterance) SetErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err == nil {
		u.err = err
	}
}
