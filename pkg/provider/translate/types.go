package translate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MrWong99/langswap/pkg/lang"
)

// MaxTextRunes is the longest input accepted, counted in characters after
// trimming.
const MaxTextRunes = 500

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("translate: invalid request")

// Request is one translation request.
type Request struct {
	Text       string
	SourceLang lang.Code
	TargetLang lang.Code
}

// Validate checks the text length (1..MaxTextRunes characters after trimming)
// and that both languages are set. A request whose source equals its target
// is valid and translates to itself.
func (r Request) Validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(r.Text))
	switch {
	case n == 0:
		return fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	case n > MaxTextRunes:
		return fmt.Errorf("%w: text is %d characters, limit is %d", ErrInvalidRequest, n, MaxTextRunes)
	case r.SourceLang == "" || r.TargetLang == "":
		return fmt.Errorf("%w: source and target language are required", ErrInvalidRequest)
	}
	return nil
}

// Identity reports whether the request translates a language into itself.
func (r Request) Identity() bool {
	return lang.Normalize(string(r.SourceLang)) == lang.Normalize(string(r.TargetLang))
}

// Response is a successful translation.
type Response struct {
	// Text is the translated text.
	Text string

	// Provider names the backend that answered.
	Provider string
}

// Error is a non-success answer from an HTTP translation backend.
type Error struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("translate: endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("translate: endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status suggests the same request may succeed
// later (rate limiting or a server-side failure).
func (e *Error) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// SystemPrompt is the instruction given to LLM backends for req.
func SystemPrompt(req Request) string {
	return fmt.Sprintf(
		"You are a translation engine. Translate the user's message from %s to %s. "+
			"Reply with the translation only: no quotes, no notes, no transliteration.",
		LanguageName(req.SourceLang), LanguageName(req.TargetLang))
}

// LanguageName returns the English name of c ("Thai" for "th"), or c itself
// when x/text does not know it.
func LanguageName(c lang.Code) string {
	tag, err := language.Parse(string(c))
	if err != nil {
		return string(c)
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return string(c)
}

// CleanOutput trims whitespace and one pair of wrapping quotes that chat
// models like to add around a translation.
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}, {"「", "」"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
