// Package lang holds the language vocabulary shared by the capture, synthesis
// and translation layers: two-letter language codes, the swappable
// source/target pair, and the mapping from codes to the full locale tags the
// recognition and synthesis platforms expect.
//
// Recognition and synthesis deliberately use different English regions
// (en-US for recognition, en-GB for synthesis). Unknown codes never fail; they
// are maximised through golang.org/x/text/language and otherwise fall back to
// the English default of the respective platform.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

// Code is a two-letter ISO-639-1 language code such as "en" or "th".
type Code string

// Well-known codes.
const (
	English Code = "en"
	Thai    Code = "th"
)

const (
	// DefaultRecognitionLocale is used when a code cannot be mapped for
	// speech recognition.
	DefaultRecognitionLocale = "en-US"

	// DefaultSynthesisLocale is used when a code cannot be mapped for speech
	// synthesis.
	DefaultSynthesisLocale = "en-GB"
)

// recognitionLocales and synthesisLocales pin the regions used by the app;
// everything else goes through likely-subtag maximisation.
var (
	recognitionLocales = map[Code]string{
		Thai:    "th-TH",
		English: "en-US",
	}
	synthesisLocales = map[Code]string{
		Thai:    "th-TH",
		English: "en-GB",
	}
)

// Normalize lower-cases and trims c. It does not validate.
func Normalize(c string) Code {
	return Code(strings.ToLower(strings.TrimSpace(c)))
}

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// Pair is the (source, target) language pair governing a translation.
// Source equal to Target is permitted and produces an identity translation.
type Pair struct {
	Source Code `json:"source"`
	Target Code `json:"target"`
}

// Swapped returns the pair with source and target exchanged.
func (p Pair) Swapped() Pair {
	return Pair{Source: p.Target, Target: p.Source}
}

// RecognitionLocale maps a two-letter code to the BCP-47 locale passed to a
// speech recognizer: th -> th-TH, en -> en-US.
func RecognitionLocale(c Code) string {
	return locale(c, recognitionLocales, DefaultRecognitionLocale)
}

// RecognitionLocaleForHint accepts either a two-letter code or a full
// locale. Full locales pass through unchanged.
func RecognitionLocaleForHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if len(hint) == 2 || hint == "" {
		return RecognitionLocale(Normalize(hint))
	}
	return hint
}

// SynthesisLocale maps a two-letter code to the BCP-47 locale passed to a
// speech synthesizer: th -> th-TH, en -> en-GB.
func SynthesisLocale(c Code) string {
	return locale(c, synthesisLocales, DefaultSynthesisLocale)
}

func locale(c Code, pinned map[Code]string, fallback string) string {
	c = Normalize(string(c))
	if l, ok := pinned[c]; ok {
		return l
	}
	if c == "" {
		return fallback
	}
	tag, err := language.Parse(string(c))
	if err != nil {
		return fallback
	}
	base, conf := tag.Base()
	if conf == language.No {
		return fallback
	}
	region, conf := tag.Region()
	if conf == language.No {
		return fallback
	}
	if l, ok := pinned[Code(base.String())]; ok {
		return l
	}
	return base.String() + "-" + region.String()
}

// Valid reports whether c parses as a language code known to x/text.
func Valid(c Code) bool {
	if len(c) != 2 {
		return false
	}
	tag, err := language.Parse(string(c))
	if err != nil {
		return false
	}
	_, conf := tag.Base()
	return conf != language.No
}

// Base reduces a locale such as "th-TH" or "en_GB" to its language code.
// Unparseable input is returned normalised but otherwise unchanged.
func Base(locale string) Code {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		if i := strings.IndexByte(locale, '-'); i > 0 {
			locale = locale[:i]
		}
		return Normalize(locale)
	}
	base, _ := tag.Base()
	return Code(base.String())
}
