// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled PCM chunks to consumers and to verify the
// requests passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks: [][]byte{make([]byte, 320), make([]byte, 320)},
//	    Format: audio.Format{SampleRate: 16000, Channels: 1},
//	}
//	u, _ := p.Synthesize(ctx, tts.Request{Text: "hello", Language: "en-GB"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Format is reported on every utterance. Zero means 16 kHz mono.
	Format audio.Format

	// Chunks is the sequence of PCM slices emitted on the Audio channel.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned from Synthesize instead of
	// starting a stream.
	SynthesizeErr error

	// StreamErr, if non-nil, is recorded on the utterance after all Chunks
	// have been emitted.
	StreamErr error

	// Hold, if non-nil, keeps the Audio channel open after Chunks until Hold is
	// closed or the context is cancelled.
	Hold chan struct{}

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Utterance, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	f, synthErr, streamErr, hold := p.Format, p.SynthesizeErr, p.StreamErr, p.Hold
	p.mu.Unlock()

	if synthErr != nil {
		return nil, synthErr
	}
	if f.SampleRate == 0 {
		f = audio.Format{SampleRate: 16000, Channels: 1}
	}

	ch := make(chan []byte, len(chunks))
	u := tts.NewUtterance(f, ch)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			u.SetErr(streamErr)
		}
	}()
	return u, nil
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

var _ tts.Provider = (*Provider)(nil)
