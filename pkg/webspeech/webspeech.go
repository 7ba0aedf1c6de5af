// Package webspeech defines the JSON frames exchanged with a browser tab that
// drives the Web Speech API (SpeechRecognition and speechSynthesis) on behalf
// of the server.
//
// Every frame is a single JSON object with a "type" discriminator. Commands
// flow server to browser, events flow browser to server. Recognition and
// synthesis frames carry the token of the session or utterance they belong
// to; receivers drop frames whose token is not current.
package webspeech

import (
	"context"
	"encoding/json"
	"fmt"
)

// Frame types sent to the browser.
const (
	TypeRecognitionStart = "recognition.start"
	TypeRecognitionStop  = "recognition.stop"
	TypeSpeechSpeak      = "speech.speak"
	TypeSpeechStop       = "speech.stop"
	TypeProbe            = "probe"
	TypeState            = "state"
	TypeNotice           = "notice"
)

// Frame types received from the browser.
const (
	TypeHello              = "hello"
	TypeRecognitionStarted = "recognition.started"
	TypeRecognitionResult  = "recognition.result"
	TypeRecognitionError   = "recognition.error"
	TypeRecognitionEnd     = "recognition.end"
	TypeSpeechStarted      = "speech.started"
	TypeSpeechDone         = "speech.done"
	TypeSpeechStopped      = "speech.stopped"
	TypeSpeechError        = "speech.error"
	TypeUI                 = "ui"
)

// Frame is the wire envelope. Only the fields relevant to Type are set.
type Frame struct {
	Type  string `json:"type"`
	Token uint64 `json:"token,omitempty"`

	// Recognition and synthesis parameters.
	Lang           string  `json:"lang,omitempty"`
	Continuous     bool    `json:"continuous,omitempty"`
	InterimResults bool    `json:"interimResults,omitempty"`
	Text           string  `json:"text,omitempty"`
	Rate           float64 `json:"rate,omitempty"`
	Pitch          float64 `json:"pitch,omitempty"`

	// Event payloads.
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`

	// Capabilities, set on hello.
	Recognition bool `json:"recognition,omitempty"`
	Synthesis   bool `json:"synthesis,omitempty"`

	// Payload carries state snapshots, notices and UI event bodies.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewPayloadFrame marshals v into the Payload of a frame of type typ.
func NewPayloadFrame(typ string, v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("webspeech: marshal %s payload: %w", typ, err)
	}
	return Frame{Type: typ, Payload: data}, nil
}

// Sender delivers frames to one browser tab.
type Sender interface {
	Send(ctx context.Context, f Frame) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, f Frame) error

// Send calls fn.
func (fn SenderFunc) Send(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Recognition error codes reported by SpeechRecognitionErrorEvent.error.
const (
	ErrCodeNotAllowed         = "not-allowed"
	ErrCodeServiceNotAllowed  = "service-not-allowed"
	ErrCodeNoSpeech           = "no-speech"
	ErrCodeAborted            = "aborted"
	ErrCodeAudioCapture       = "audio-capture"
	ErrCodeNetwork            = "network"
	ErrCodeLanguageNotSupport = "language-not-supported"
	ErrCodeNotSupported       = "not-supported"
)

// PermissionDenied reports whether a recognition error code means the user
// or the browser refused microphone access.
func PermissionDenied(code string) bool {
	return code == ErrCodeNotAllowed || code == ErrCodeServiceNotAllowed
}
