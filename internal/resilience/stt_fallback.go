package resilience

import (
	"context"

	"github.com/MrWong99/langswap/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] over an ordered list of transcription
// backends. Only opening the stream fails over; a session that has started
// stays on its backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns a fallback chain whose first backend is primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// StartStream opens a session on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Session, error) {
		return p.StartStream(ctx, cfg)
	})
}
