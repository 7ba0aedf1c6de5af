package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/langswap/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] over an ordered list of synthesis
// backends. Only starting an utterance fails over; audio that has begun
// streaming stays on its backend.
type TTSFallback struct {
	group *FallbackGroup[voicedTTS]
}

// voicedTTS pairs a backend with the voice it uses in place of the
// request's voice, since voice identifiers are backend specific.
type voicedTTS struct {
	provider tts.Provider
	voice    string
	primary  bool
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a fallback chain whose first backend is primary.
// Requests reach the primary with their voice unchanged. Empty text is never
// retried.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, tts.ErrEmptyText) }
	}
	return &TTSFallback{group: NewFallbackGroup(voicedTTS{provider: primary, primary: true}, primaryName, cfg)}
}

// AddFallback appends a backend to the chain. voice replaces the request's
// voice on that backend; empty selects the backend's default voice.
func (f *TTSFallback) AddFallback(name string, p tts.Provider, voice string) {
	f.group.AddFallback(name, voicedTTS{provider: p, voice: voice})
}

// Synthesize starts req on the first backend that accepts it.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Utterance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return ExecuteWithResult(ctx, f.group, func(b voicedTTS) (*tts.Utterance, error) {
		r := req
		if !b.primary {
			r.Voice = b.voice
		}
		return b.provider.Synthesize(ctx, r)
	})
}
