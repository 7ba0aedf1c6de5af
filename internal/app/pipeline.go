package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/langswap/internal/bridge"
	"github.com/MrWong99/langswap/internal/config"
	"github.com/MrWong99/langswap/internal/lesson"
	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/speech"
	"github.com/MrWong99/langswap/internal/translator"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/provider/synth"
	"github.com/MrWong99/langswap/pkg/provider/translate"
)

// Pipeline is one platform's capture backend, speech controller, translator
// session and lesson audio controller wired together. A browser tab owns one
// pipeline; the device platform has exactly one.
type Pipeline struct {
	ID       string
	Platform config.Platform
	Capture  capture.Backend
	Speech   *speech.Controller
	Session  *translator.Session
	Lesson   *lesson.AudioController

	// closers are called in reverse order by Close.
	closers []func() error
}

// pipelineDeps are the shared pieces every pipeline is built from.
type pipelineDeps struct {
	translate    translate.Provider
	providerName string
	store        lesson.MuteStore
	metrics      *observe.Metrics
	rate         float64
	pitch        float64
}

// newPipeline wires backend and engine into a full pipeline. Notices raised
// by any part go to sink.
func newPipeline(id string, platform config.Platform, backend capture.Backend, engine synth.Engine, sink notice.Sink, d pipelineDeps) *Pipeline {
	sp := speech.New(engine,
		speech.WithNotices(sink),
		speech.WithMetrics(d.metrics),
		speech.WithDefaults(d.rate, d.pitch),
	)
	sess := translator.New(d.translate,
		translator.WithCapture(backend),
		translator.WithSpeech(sp),
		translator.WithNotices(sink),
		translator.WithMetrics(d.metrics),
		translator.WithProviderName(d.providerName),
	)
	// The speaking flag is part of the session snapshot.
	unsubscribe := sp.OnSpeakingChange(func(bool) { sess.Changed() })

	p := &Pipeline{
		ID:       id,
		Platform: platform,
		Capture:  backend,
		Speech:   sp,
		Session:  sess,
		Lesson:   lesson.New(sp, d.store, lesson.WithNotices(sink)),
	}
	if c, ok := engine.(interface{ Close() error }); ok {
		p.closers = append(p.closers, c.Close)
	}
	p.closers = append(p.closers,
		backend.Close,
		func() error { unsubscribe(); return nil },
		func() error { return sp.Stop(context.Background()) },
		sess.Close,
	)
	return p
}

// Target returns what UI actions operate on.
func (p *Pipeline) Target() bridge.Target {
	return bridge.Target{Session: p.Session, Lesson: p.Lesson}
}

// Close releases the pipeline. It stops capture and playback first.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		slog.Warn("pipeline close errors", "id", p.ID, "err", errors.Join(errs...))
	}
	p.closers = nil
	return errors.Join(errs...)
}
