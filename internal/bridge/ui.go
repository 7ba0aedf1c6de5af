package bridge

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MrWong99/langswap/internal/lesson"
	"github.com/MrWong99/langswap/internal/translator"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/translate"
)

// UI actions accepted in a ui frame payload.
const (
	ActionSetInput      = "set_input"
	ActionSubmit        = "submit"
	ActionSwap          = "swap"
	ActionSetPair       = "set_pair"
	ActionClear         = "clear"
	ActionSelectHistory = "select_history"
	ActionStartCapture  = "start_capture"
	ActionStopCapture   = "stop_capture"
	ActionSpeakInput    = "speak_input"
	ActionSpeakOutput   = "speak_output"
	ActionStopSpeaking  = "stop_speaking"
	ActionReset         = "reset"

	ActionLessonMount      = "lesson_mount"
	ActionLessonReveal     = "lesson_reveal"
	ActionLessonPlay       = "lesson_play"
	ActionLessonToggleMute = "lesson_toggle_mute"
)

// ErrUnknownAction is returned by [Dispatch] for an unrecognised action.
var ErrUnknownAction = errors.New("bridge: unknown ui action")

// ErrInvalidEvent is returned by [Dispatch] for a known action with unusable
// arguments.
var ErrInvalidEvent = errors.New("bridge: invalid ui event")

// UIEvent is the payload of a ui frame and of POST /api/ui.
type UIEvent struct {
	Action string      `json:"action"`
	Text   string      `json:"text,omitempty"`
	Source lang.Code   `json:"source,omitempty"`
	Target lang.Code   `json:"target,omitempty"`
	ID     string      `json:"id,omitempty"`
	Card   lesson.Card `json:"card,omitzero"`
	Mode   lesson.Mode `json:"mode,omitempty"`
}

// Target is what UI actions operate on. Lesson may be nil when the platform
// has no lesson screen.
type Target struct {
	Session *translator.Session
	Lesson  *lesson.AudioController
}

// State is the payload of a state frame and the body of GET /api/state.
type State struct {
	Translator translator.Snapshot `json:"translator"`
	Lesson     LessonState         `json:"lesson"`
}

// LessonState is the lesson part of [State].
type LessonState struct {
	Muted bool `json:"muted"`
}

// StateOf returns the current state of t.
func StateOf(t Target) State {
	st := State{Translator: t.Session.Snapshot()}
	if t.Lesson != nil {
		st.Lesson.Muted = t.Lesson.Muted()
	}
	return st
}

// Blocking reports whether action waits on a remote call and should not run
// on the frame reader.
func Blocking(action string) bool { return action == ActionSubmit }

// Dispatch applies ev to t. Text longer than [translate.MaxTextRunes] is cut
// to that length before it reaches the session.
func Dispatch(ctx context.Context, t Target, ev UIEvent) error {
	s := t.Session
	switch ev.Action {
	case ActionSetInput:
		return s.SetInputText(truncateRunes(ev.Text, translate.MaxTextRunes))
	case ActionSubmit:
		return s.Submit(ctx)
	case ActionSwap:
		return s.Swap()
	case ActionSetPair:
		p := lang.Pair{Source: lang.Normalize(string(ev.Source)), Target: lang.Normalize(string(ev.Target))}
		if !lang.Valid(p.Source) || !lang.Valid(p.Target) {
			return fmt.Errorf("%w: language pair %q -> %q", ErrInvalidEvent, ev.Source, ev.Target)
		}
		return s.SetPair(p)
	case ActionClear:
		return s.Clear()
	case ActionSelectHistory:
		return s.SelectFromHistory(ev.ID)
	case ActionStartCapture:
		return s.StartCapture(ctx)
	case ActionStopCapture:
		return s.StopCapture()
	case ActionSpeakInput:
		return s.SpeakInput(ctx)
	case ActionSpeakOutput:
		return s.SpeakOutput(ctx)
	case ActionStopSpeaking:
		return s.StopSpeaking(ctx)
	case ActionReset:
		return s.Reset()
	}

	if t.Lesson == nil {
		return fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
	}
	switch ev.Action {
	case ActionLessonMount:
		_, err := t.Lesson.Mount(ctx)
		return err
	case ActionLessonReveal:
		if !ev.Mode.Valid() {
			return fmt.Errorf("%w: lesson mode %q", ErrInvalidEvent, ev.Mode)
		}
		_, err := t.Lesson.Reveal(ctx, ev.Card, ev.Mode)
		return err
	case ActionLessonPlay:
		if !ev.Mode.Valid() {
			return fmt.Errorf("%w: lesson mode %q", ErrInvalidEvent, ev.Mode)
		}
		return t.Lesson.Play(ctx, ev.Card, ev.Mode)
	case ActionLessonToggleMute:
		_, err := t.Lesson.ToggleMute(ctx)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
