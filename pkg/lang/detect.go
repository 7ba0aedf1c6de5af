package lang

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// minDetectRunes is the shortest input worth running detection on. Shorter
// strings produce unreliable guesses.
const minDetectRunes = 4

// Detection is the result of [Detect].
type Detection struct {
	Code       Code
	Confidence float64
	Reliable   bool
}

// Detect guesses the language of text. The zero Detection is returned for
// input too short to judge or when no language could be identified.
func Detect(text string) Detection {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minDetectRunes {
		return Detection{}
	}
	info := whatlanggo.Detect(text)
	iso := info.Lang.Iso6391()
	if iso == "" {
		return Detection{}
	}
	return Detection{
		Code:       Code(iso),
		Confidence: info.Confidence,
		Reliable:   info.IsReliable(),
	}
}
