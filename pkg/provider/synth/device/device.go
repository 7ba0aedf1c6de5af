// Package device implements synth.Engine for the local machine: text is
// turned into PCM by a tts.Provider and played through an audio.Sink.
//
// Each utterance runs in its own goroutine under its own cancellable context.
// Speak cancels whatever is playing before starting the next utterance, and
// every utterance reports exactly one outcome: OnStopped if its context was
// cancelled, OnError if synthesis or playback failed, OnDone otherwise.
//
// Rate and Pitch are not forwarded; neither Coqui nor ElevenLabs exposes them
// over the APIs used here.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/synth"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

// Name is the engine name reported in logs and metrics.
const Name = "device"

// frameBuf is the depth of the frame channel between synthesis and playback.
const frameBuf = 16

// Option configures an Engine.
type Option func(*Engine)

// WithVoices sets the voice used per language code ("th", "en"). Languages
// without an entry use the default voice.
func WithVoices(voices map[string]string) Option {
	return func(e *Engine) {
		for k, v := range voices {
			e.voices[lang.Normalize(k)] = v
		}
	}
}

// WithDefaultVoice sets the voice for languages not listed in WithVoices.
func WithDefaultVoice(v string) Option {
	return func(e *Engine) { e.defaultVoice = v }
}

// Engine implements synth.Engine over a TTS provider and a speaker.
type Engine struct {
	provider     tts.Provider
	sink         audio.Sink
	voices       map[lang.Code]string
	defaultVoice string

	mu      sync.Mutex
	seq     uint64
	current *playback
	wg      sync.WaitGroup
}

type playback struct {
	token  uint64
	cancel context.CancelFunc
	// done is closed once the sink has stopped, before any callback runs.
	done chan struct{}
}

// wait blocks until the playback has left the sink or ctx ends.
func (pb *playback) wait(ctx context.Context) error {
	select {
	case <-pb.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("device: wait for playback to stop: %w", ctx.Err())
	}
}

// New returns an Engine that synthesises with provider and plays on sink.
// Either may be nil, in which case the engine reports itself unavailable.
func New(provider tts.Provider, sink audio.Sink, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		sink:     sink,
		voices:   make(map[lang.Code]string),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name implements synth.Engine.
func (e *Engine) Name() string { return Name }

// Available implements synth.Engine. A sink that can report its own
// availability (a real speaker) is consulted.
func (e *Engine) Available(ctx context.Context) bool {
	if e.provider == nil || e.sink == nil {
		return false
	}
	if a, ok := e.sink.(interface{ Available(context.Context) bool }); ok {
		return a.Available(ctx)
	}
	return true
}

// Speak implements synth.Engine. A previous utterance is stopped and has left
// the speaker before the new one starts. Synthesis and playback continue
// after Speak returns; ctx only bounds the dispatch.
func (e *Engine) Speak(ctx context.Context, text string, opts synth.Options) error {
	if !e.Available(ctx) {
		return synth.ErrNotSupported
	}
	req := tts.Request{Text: text, Language: opts.Language, Voice: e.voiceFor(opts.Language)}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}

	playCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	prev := e.current
	e.seq++
	pb := &playback{token: e.seq, cancel: cancel, done: make(chan struct{})}
	e.current = pb
	e.wg.Add(1)
	e.mu.Unlock()

	var waitPrev <-chan struct{}
	if prev != nil {
		prev.cancel()
		waitPrev = prev.done
	}

	go func() {
		defer e.wg.Done()
		if waitPrev != nil {
			select {
			case <-waitPrev:
			case <-playCtx.Done():
			}
		}
		var err error
		if playCtx.Err() == nil {
			err = e.play(playCtx, req)
		}
		stopped := playCtx.Err() != nil
		cancel()
		e.clear(pb)
		if waitPrev != nil {
			<-waitPrev
		}
		close(pb.done)

		switch {
		case stopped:
			if opts.OnStopped != nil {
				opts.OnStopped()
			}
		case err != nil:
			slog.Warn("device synthesis failed", "language", req.Language, "err", err)
			if opts.OnError != nil {
				opts.OnError(err)
			}
		default:
			if opts.OnDone != nil {
				opts.OnDone()
			}
		}
	}()
	return nil
}

// play synthesises req and blocks until the audio has been played.
func (e *Engine) play(ctx context.Context, req tts.Request) error {
	utt, err := e.provider.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("device: synthesize: %w", err)
	}

	frames := make(chan audio.AudioFrame, frameBuf)
	go func() {
		defer close(frames)
		var ts time.Duration
		for chunk := range utt.Audio {
			f := audio.AudioFrame{
				Data:       chunk,
				SampleRate: utt.Format.SampleRate,
				Channels:   utt.Format.Channels,
				Timestamp:  ts,
			}
			ts += f.Duration()
			select {
			case frames <- f:
			case <-ctx.Done():
				audio.Drain(utt.Audio)
				return
			}
		}
	}()

	out := audio.ConvertStream(ctx, frames, e.sink.Format())
	err = e.sink.Play(ctx, out)
	// Play may bail out on a device error without consuming everything.
	go audio.Drain(out)
	if err != nil {
		return fmt.Errorf("device: play: %w", err)
	}
	if err := utt.Err(); err != nil {
		return fmt.Errorf("device: synthesize: %w", err)
	}
	return nil
}

// Stop implements synth.Engine. It returns once the interrupted utterance
// has left the speaker, or with an error when ctx ends first. The utterance
// reports OnStopped from its playback goroutine.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	pb := e.current
	e.current = nil
	e.mu.Unlock()
	if pb == nil {
		return nil
	}
	pb.cancel()
	return pb.wait(ctx)
}

// IsSpeaking implements synth.Engine. It is true from Speak until the
// utterance ends, including the time spent waiting for synthesis.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Close stops playback and waits for all utterance goroutines to finish.
func (e *Engine) Close() error {
	err := e.Stop(context.Background())
	e.wg.Wait()
	return err
}

func (e *Engine) clear(pb *playback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == pb {
		e.current = nil
	}
}

func (e *Engine) voiceFor(locale string) string {
	if v, ok := e.voices[lang.Base(locale)]; ok {
		return v
	}
	return e.defaultVoice
}

var _ synth.Engine = (*Engine)(nil)
