package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/provider/stt"
)

// ErrNotActive is returned by [STTRecognizer.Stop] when token is not being
// recognised.
var ErrNotActive = errors.New("device: no active recognition for token")

const (
	defaultSampleRate  = 16000
	defaultMaxDuration = 15 * time.Second
)

// STTOption is a functional option for [NewSTTRecognizer].
type STTOption func(*STTRecognizer)

// WithSampleRate sets the capture sample rate. Defaults to 16000.
func WithSampleRate(rate int) STTOption {
	return func(r *STTRecognizer) { r.sampleRate = rate }
}

// WithMaxDuration caps the length of one utterance. Defaults to 15 s.
func WithMaxDuration(d time.Duration) STTOption {
	return func(r *STTRecognizer) { r.maxDuration = d }
}

// STTRecognizer implements [Recognizer] by streaming microphone audio into an
// STT session. The first final transcript ends the utterance, matching the
// single-shot behaviour of browser recognition.
type STTRecognizer struct {
	mic         audio.Source
	provider    stt.Provider
	sampleRate  int
	maxDuration time.Duration

	mu       sync.Mutex
	handlers Handlers
	active   *recognition
}

type recognition struct {
	token  uint64
	stop   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (r *recognition) requestStop() { r.once.Do(func() { close(r.stop) }) }

// NewSTTRecognizer returns a recognizer reading from mic and transcribing with
// provider.
func NewSTTRecognizer(mic audio.Source, provider stt.Provider, opts ...STTOption) *STTRecognizer {
	r := &STTRecognizer{
		mic:         mic,
		provider:    provider,
		sampleRate:  defaultSampleRate,
		maxDuration: defaultMaxDuration,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Available reports whether a microphone is present.
func (r *STTRecognizer) Available(ctx context.Context) bool {
	return r.mic != nil && r.provider != nil && r.mic.Available(ctx)
}

// SetHandlers implements [Recognizer].
func (r *STTRecognizer) SetHandlers(h Handlers) {
	r.mu.Lock()
	r.handlers = h
	r.mu.Unlock()
}

// Start opens the microphone and an STT session, then pumps audio on a
// background goroutine until the utterance ends.
func (r *STTRecognizer) Start(ctx context.Context, locale string, token uint64) error {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return capture.NewError(capture.KindAlreadyCapturing, "", nil)
	}
	// Reserve the slot before touching the device.
	rec := &recognition{token: token, stop: make(chan struct{})}
	r.active = rec
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if r.active == rec {
			r.active = nil
		}
		r.mu.Unlock()
	}

	format := audio.Format{SampleRate: r.sampleRate, Channels: 1}
	stream, err := r.mic.Open(ctx, format)
	if err != nil {
		release()
		return classifyAudioErr(err)
	}

	// The recognition outlives the Start call, so it gets its own context.
	runCtx, cancel := context.WithTimeout(context.Background(), r.maxDuration+capture.DefaultStopGrace)
	rec.cancel = cancel

	sess, err := r.provider.StartStream(runCtx, stt.StreamConfig{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Language:   locale,
	})
	if err != nil {
		cancel()
		_ = stream.Close()
		release()
		return capture.NewError(capture.KindNotAvailable, "speech-to-text unavailable", err)
	}

	go func() {
		defer release()
		defer cancel()
		r.run(runCtx, rec, stream, sess)
	}()
	return nil
}

// Stop ends the utterance for token. Audio captured so far is still
// transcribed.
func (r *STTRecognizer) Stop(token uint64) error {
	r.mu.Lock()
	rec := r.active
	r.mu.Unlock()
	if rec == nil || rec.token != token {
		return ErrNotActive
	}
	rec.requestStop()
	return nil
}

func (r *STTRecognizer) run(ctx context.Context, rec *recognition, stream audio.Stream, sess stt.Session) {
	h := r.currentHandlers()
	log := slog.With("token", rec.token)
	if h.OnStart != nil {
		h.OnStart(rec.token)
	}

	var (
		mu    sync.Mutex
		texts []string
	)
	endpointed := make(chan struct{})
	var endOnce sync.Once

	g, gctx := errgroup.WithContext(ctx)

	// Audio pump: microphone -> STT until stopped, endpointed or timed out.
	g.Go(func() error {
		defer func() {
			_ = stream.Close()
			_ = sess.Close()
		}()
		timeout := time.NewTimer(r.maxDuration)
		defer timeout.Stop()
		for {
			select {
			case <-rec.stop:
				return nil
			case <-endpointed:
				return nil
			case <-timeout.C:
				log.Debug("device recognizer: max utterance duration reached")
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case f, ok := <-stream.Frames():
				if !ok {
					return fmt.Errorf("microphone stream ended: %w", audio.ErrNoDevice)
				}
				if err := sess.Send(f.Data); err != nil {
					return fmt.Errorf("send audio: %w", err)
				}
			}
		}
	})

	// Transcript collector: the first final ends the utterance; finals that
	// arrive while the session flushes are appended. Interim results are
	// not surfaced.
	g.Go(func() error {
		for t := range sess.Results() {
			text := strings.TrimSpace(t.Text)
			if !t.Final || text == "" {
				continue
			}
			mu.Lock()
			texts = append(texts, text)
			mu.Unlock()
			endOnce.Do(func() { close(endpointed) })
		}
		return nil
	})

	err := g.Wait()

	mu.Lock()
	transcript := strings.Join(texts, " ")
	mu.Unlock()

	switch {
	case transcript != "":
		if h.OnResult != nil {
			h.OnResult(rec.token, transcript)
		}
	case err != nil:
		log.Warn("device recognizer failed", "err", err)
		if h.OnError != nil {
			h.OnError(rec.token, classifyAudioErr(err))
		}
	}
	if h.OnEnd != nil {
		h.OnEnd(rec.token)
	}
}

func (r *STTRecognizer) currentHandlers() Handlers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers
}

// classifyAudioErr maps microphone errors onto the capture taxonomy.
func classifyAudioErr(err error) *capture.Error {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return capture.NewError(capture.KindPermissionDenied, "microphone access denied", err)
	case errors.Is(err, audio.ErrNoDevice):
		return capture.NewError(capture.KindNotAvailable, "no microphone", err)
	default:
		return capture.NewError(capture.KindRecognition, "", err)
	}
}

var _ Recognizer = (*STTRecognizer)(nil)
