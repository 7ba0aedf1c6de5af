// Package lesson plays flashcard audio during lessons.
//
// [AudioController] sits on top of the shared speech controller. When the
// answer side of a card is revealed it speaks that side once, unless the
// persisted mute preference is set, in which case nothing is spoken and
// nothing is queued. The mute switch belongs to the lesson screen only; the
// translator screen ignores it.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/speech"
	"github.com/MrWong99/langswap/pkg/lang"
)

// Mode is the direction a lesson is studied in.
type Mode string

const (
	// ModeLearnThai shows English and reveals Thai.
	ModeLearnThai Mode = "learn-thai"

	// ModeLearnEnglish shows Thai and reveals English.
	ModeLearnEnglish Mode = "learn-english"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeLearnThai || m == ModeLearnEnglish }

// Card is one flashcard of a lesson.
type Card struct {
	Thai         string `json:"thai"`
	Romanization string `json:"romanization,omitempty"`
	English      string `json:"english"`
	Example      string `json:"example,omitempty"`
}

// Answer returns the text and language of the side revealed in mode.
func (c Card) Answer(m Mode) (string, lang.Code) {
	if m == ModeLearnEnglish {
		return strings.TrimSpace(c.English), lang.English
	}
	return strings.TrimSpace(c.Thai), lang.Thai
}

// Lesson is the content of one lesson as served by the lesson store.
type Lesson struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Mode  Mode   `json:"language_mode"`
	Cards []Card `json:"items"`
}

// Source provides lesson content. It is implemented outside this module.
type Source interface {
	Lesson(ctx context.Context, id string) (*Lesson, error)
}

// Speaker is the part of the shared speech controller lessons use.
type Speaker interface {
	Speak(ctx context.Context, u speech.Utterance) error
	Stop(ctx context.Context) error
	Active() (speech.Utterance, bool)
}

// MuteStore persists the lesson mute flag.
type MuteStore interface {
	LoadMute(ctx context.Context) (bool, error)
	SaveMute(ctx context.Context, muted bool) error
}

// ErrEmptyAnswer is returned by Reveal and Play for a card without text on
// the answer side.
var ErrEmptyAnswer = errors.New("lesson: card has no answer text")

// Option configures an [AudioController].
type Option func(*AudioController)

// WithNotices sets the sink for persistence failures. Default:
// [notice.Discard].
func WithNotices(n notice.Sink) Option {
	return func(c *AudioController) { c.notices = n }
}

// AudioController auto-plays revealed answers. It is safe for concurrent use.
type AudioController struct {
	speaker Speaker
	store   MuteStore
	notices notice.Sink

	// toggleMu keeps writes to the store in toggle order.
	toggleMu sync.Mutex

	mu    sync.Mutex
	muted bool
}

// New returns an AudioController. The mute flag starts false until Mount
// reads the store.
func New(speaker Speaker, store MuteStore, opts ...Option) *AudioController {
	c := &AudioController{speaker: speaker, store: store, notices: notice.Discard}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Mount re-reads the persisted mute flag. It is called at startup and every
// time the lesson screen is shown. On a read failure the previous value is
// kept and the error returned.
func (c *AudioController) Mount(ctx context.Context) (muted bool, err error) {
	m, err := c.store.LoadMute(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return c.muted, fmt.Errorf("lesson: load mute preference: %w", err)
	}
	c.muted = m
	return m, nil
}

// Muted reports the current mute flag.
func (c *AudioController) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Reveal is called when the answer side of card is shown. It issues exactly
// one Speak for the answer unless muted, in which case it issues none and
// reports false.
func (c *AudioController) Reveal(ctx context.Context, card Card, mode Mode) (spoken bool, err error) {
	if c.Muted() {
		slog.Debug("lesson: reveal muted")
		return false, nil
	}
	if err := c.Play(ctx, card, mode); err != nil {
		return false, err
	}
	return true, nil
}

// Play speaks the answer side of card regardless of the mute flag. It backs
// the explicit replay button.
func (c *AudioController) Play(ctx context.Context, card Card, mode Mode) error {
	text, code := card.Answer(mode)
	if text == "" {
		return ErrEmptyAnswer
	}
	return c.speaker.Speak(ctx, speech.Utterance{Text: text, Language: code, Source: speech.SourceLesson})
}

// ToggleMute flips and persists the mute flag and returns the new value.
// Toggling while a lesson utterance is playing stops it immediately; speech
// from the translator screen keeps playing. A failed write keeps the new
// value for this process and raises a notice.
func (c *AudioController) ToggleMute(ctx context.Context) (bool, error) {
	c.toggleMu.Lock()
	defer c.toggleMu.Unlock()

	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	c.mu.Unlock()

	if u, ok := c.speaker.Active(); ok && u.Source == speech.SourceLesson {
		if err := c.speaker.Stop(ctx); err != nil {
			slog.Warn("lesson: stop on mute failed", "err", err)
		}
	}

	if err := c.store.SaveMute(ctx, muted); err != nil {
		c.notices.Notify(ctx, notice.Notice{
			Kind:    notice.KindWarning,
			Code:    notice.CodeLessonMutePersist,
			Message: "The mute setting could not be saved.",
			Err:     err,
		})
		return muted, fmt.Errorf("lesson: save mute preference: %w", err)
	}
	return muted, nil
}
