// Package app wires the LangSwap subsystems into a running server.
//
// The App struct owns the full lifecycle: New resolves the platform, opens
// the preference store and builds the device pipeline when the device
// platform is selected; Run serves HTTP until the context is cancelled; and
// Shutdown tears everything down in order.
//
// On the browser platform each tab that connects to the bridge gets its own
// pipeline. On the device platform a single pipeline drives the local
// microphone and speaker and is controlled through /api/ui.
//
// For testing, inject doubles via functional options (WithMuteStore,
// WithDevices, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/langswap/internal/bridge"
	"github.com/MrWong99/langswap/internal/config"
	"github.com/MrWong99/langswap/internal/health"
	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/prefs"
	capturebrowser "github.com/MrWong99/langswap/pkg/provider/capture/browser"
	capturedevice "github.com/MrWong99/langswap/pkg/provider/capture/device"
	"github.com/MrWong99/langswap/pkg/provider/stt"
	synthbrowser "github.com/MrWong99/langswap/pkg/provider/synth/browser"
	synthdevice "github.com/MrWong99/langswap/pkg/provider/synth/device"
	"github.com/MrWong99/langswap/pkg/provider/translate"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

// DeviceSessionID is the session ID of the device pipeline.
const DeviceSessionID = "device"

// shutdownTimeout bounds the HTTP server drain in Run.
const shutdownTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Translate translate.Provider

	// TranslateName labels the translation provider in metrics and spans.
	TranslateName string

	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes and serves the LangSwap HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers
	platform  config.Platform

	devices     *Devices
	openDevices DeviceOpener
	store       prefs.Store
	metrics     *observe.Metrics
	logLevel    *slog.LevelVar
	notices     notice.Sink
	desktop     atomic.Pointer[notice.Desktop]

	sessions *SessionManager
	device   *Pipeline

	// mu guards the synthesis defaults applied to new pipelines.
	mu    sync.Mutex
	rate  float64
	pitch float64

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMuteStore injects a preference store instead of creating one from
// config. The App does not close an injected store.
func WithMuteStore(s prefs.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDevices injects the device platform's microphone and speaker.
func WithDevices(d *Devices) Option {
	return func(a *App) { a.devices = d }
}

// WithDeviceOpener replaces [OpenPortAudio].
func WithDeviceOpener(fn DeviceOpener) Option {
	return func(a *App) { a.openDevices = fn }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets configuration reloads change the level of the handler
// built on lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithNotices adds a sink that receives every notice from every pipeline.
func WithNotices(s notice.Sink) Option {
	return func(a *App) { a.notices = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. A translation provider is
// required; STT and TTS are only needed for the device platform.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Translate == nil {
		return nil, errors.New("app: a translation provider is required")
	}
	a := &App{
		cfg:         cfg,
		providers:   providers,
		openDevices: OpenPortAudio,
		sessions:    NewSessionManager(),
		rate:        cfg.Synthesis.Rate,
		pitch:       cfg.Synthesis.Pitch,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.providers.TranslateName == "" {
		a.providers.TranslateName = cfg.Translate.Name
	}

	// ── 1. Preference store ─────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init preferences: %w", err)
	}

	// ── 2. Platform ─────────────────────────────────────────────────────
	platform, err := a.resolvePlatform(ctx)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.platform = platform

	// ── 3. Device pipeline ──────────────────────────────────────────────
	if platform == config.PlatformDevice {
		if err := a.initDevicePipeline(ctx); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init device pipeline: %w", err)
		}
	}

	slog.Info("app initialised",
		"platform", a.platform,
		"translate", a.providers.TranslateName,
		"preferences", cfg.Preferences.Backend,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured preference store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, err := openStore(ctx, a.cfg.Preferences)
	if err != nil {
		return err
	}
	if err := s.Ping(ctx); err != nil {
		// The lesson screen still works; saves will raise notices.
		slog.Warn("preference store unreachable", "backend", a.cfg.Preferences.Backend, "err", err)
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

// openStore builds the store selected by cfg.
func openStore(ctx context.Context, cfg config.PreferencesConfig) (prefs.Store, error) {
	switch cfg.Backend {
	case config.PreferencesFile:
		return prefs.NewFile(cfg.Path)
	case config.PreferencesRedis:
		return prefs.NewRedis(prefs.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.Key,
		})
	case config.PreferencesPostgres:
		return prefs.NewPostgres(ctx, cfg.PostgresDSN, cfg.Key)
	case config.PreferencesMemory:
		return &prefs.Memory{}, nil
	}
	return nil, fmt.Errorf("unknown preferences backend %q", cfg.Backend)
}

// initDevicePipeline builds the single pipeline of the device platform.
func (a *App) initDevicePipeline(ctx context.Context) error {
	dc := a.cfg.Capture.Device
	rec := capturedevice.NewSTTRecognizer(a.devices.Mic, a.providers.STT,
		capturedevice.WithSampleRate(dc.SampleRate),
		capturedevice.WithMaxDuration(dc.MaxDuration),
	)
	backend := capturedevice.New(rec)

	var engineOpts []synthdevice.Option
	opts := a.cfg.Synthesis.Device.Options
	if v := optString(opts, "voice"); v != "" {
		engineOpts = append(engineOpts, synthdevice.WithDefaultVoice(v))
	}
	if voices := optStringMap(opts, "voices"); len(voices) > 0 {
		engineOpts = append(engineOpts, synthdevice.WithVoices(voices))
	}
	engine := synthdevice.New(a.providers.TTS, a.devices.Speaker, engineOpts...)

	a.setDesktop(a.cfg.Notices)
	sink := notice.Multi(
		notice.LogSink{},
		notice.SinkFunc(func(ctx context.Context, n notice.Notice) {
			if d := a.desktop.Load(); d != nil {
				d.Notify(ctx, n)
			}
		}),
		a.notices,
	)

	p := newPipeline(DeviceSessionID, config.PlatformDevice, backend, engine, sink, a.deps())
	if err := a.sessions.Add(SessionInfo{ID: DeviceSessionID, Platform: config.PlatformDevice}, p); err != nil {
		_ = p.Close()
		return err
	}
	if _, err := p.Lesson.Mount(ctx); err != nil {
		slog.Warn("could not read the lesson mute setting", "err", err)
	}
	a.device = p
	return nil
}

// buildBrowserPipeline is the bridge [bridge.Builder]: every tab gets its own
// pipeline, registered with the session manager for as long as it is
// connected.
func (a *App) buildBrowserPipeline(ctx context.Context, c *bridge.Conn) (*bridge.Endpoint, error) {
	cb := capturebrowser.New(c)
	se := synthbrowser.New(c)
	p := newPipeline(c.ID(), config.PlatformBrowser, cb, se, notice.Multi(c, notice.LogSink{}, a.notices), a.deps())
	if err := a.sessions.Add(SessionInfo{ID: c.ID(), Platform: config.PlatformBrowser}, p); err != nil {
		_ = p.Close()
		return nil, err
	}
	if _, err := p.Lesson.Mount(ctx); err != nil {
		slog.Warn("could not read the lesson mute setting", "session", c.ID(), "err", err)
	}
	return &bridge.Endpoint{
		Capture: cb,
		Synth:   se,
		Target:  p.Target(),
		Close: func() error {
			// Shutdown may have stopped it already.
			if err := a.sessions.Stop(c.ID()); !errors.Is(err, ErrUnknownSession) {
				return err
			}
			return nil
		},
	}, nil
}

func (a *App) deps() pipelineDeps {
	a.mu.Lock()
	rate, pitch := a.rate, a.pitch
	a.mu.Unlock()
	return pipelineDeps{
		translate:    a.providers.Translate,
		providerName: a.providers.TranslateName,
		store:        a.store,
		metrics:      a.metrics,
		rate:         rate,
		pitch:        pitch,
	}
}

func (a *App) setDesktop(n config.NoticesConfig) {
	if !n.Desktop {
		a.desktop.Store(nil)
		return
	}
	a.desktop.Store(notice.NewDesktop(n.ShowInfo))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Platform returns the platform the App resolved at startup.
func (a *App) Platform() config.Platform { return a.platform }

// Sessions returns the session manager tracking live pipelines.
func (a *App) Sessions() *SessionManager { return a.sessions }

// DevicePipeline returns the device pipeline, or nil on the browser platform.
func (a *App) DevicePipeline() *Pipeline { return a.device }

// ─── HTTP ────────────────────────────────────────────────────────────────────

// Handler returns the HTTP surface: health probes, metrics, the session list
// and either the browser bridge or the device control API.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(a.metrics))

	a.readiness().Register(r)
	r.Handle(a.cfg.Telemetry.MetricsPath, promhttp.Handler())

	switch a.platform {
	case config.PlatformDevice:
		r.Get("/api/state", a.handleState)
		r.Post("/api/ui", a.handleUI)
	default:
		r.Handle(bridge.Path, bridge.NewHandler(a.buildBrowserPipeline,
			bridge.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
			bridge.WithMetrics(a.metrics),
		))
	}
	r.Get("/api/sessions", a.handleSessions)
	return r
}

// readiness builds the /readyz checks for the resolved platform.
func (a *App) readiness() *health.Handler {
	h := health.New().Add("preferences", health.Ping(a.store))
	if p, ok := a.providers.Translate.(translate.Pinger); ok {
		h.Add("translate", health.Ping(p))
	}
	if a.device != nil {
		h.Add("capture", health.Available(a.device.Capture.Available))
		h.Add("synthesis", health.Available(a.device.Speech.Available))
	}
	return h
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled. When ctx is done, Run drains the server and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr, "platform", a.platform)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a configuration change. It
// has the signature of a [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SynthesisChanged {
		a.mu.Lock()
		a.rate, a.pitch = d.NewRate, d.NewPitch
		a.mu.Unlock()
		a.sessions.Each(func(p *Pipeline) { p.Speech.SetDefaults(d.NewRate, d.NewPitch) })
		slog.Info("synthesis defaults changed", "rate", d.NewRate, "pitch", d.NewPitch)
	}
	if d.NoticesChanged {
		a.setDesktop(d.NewNotices)
		slog.Info("notice settings changed", "desktop", d.NewNotices.Desktop)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops every live pipeline and releases the preference store and
// audio devices. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- errors.Join(a.sessions.StopAll(), a.closeAll())
		}()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

// closeAll runs the closers in reverse order.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStringMap extracts a map of strings from a provider Options map.
// Non-string values are skipped.
func optStringMap(opts map[string]any, key string) map[string]string {
	m, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
