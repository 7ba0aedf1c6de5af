// Command langswap is the main entry point for the LangSwap speech translation
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/langswap/internal/app"
	"github.com/MrWong99/langswap/internal/config"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/resilience"
	"github.com/MrWong99/langswap/pkg/provider/stt"
	"github.com/MrWong99/langswap/pkg/provider/stt/deepgram"
	"github.com/MrWong99/langswap/pkg/provider/stt/whisper"
	"github.com/MrWong99/langswap/pkg/provider/translate"
	"github.com/MrWong99/langswap/pkg/provider/translate/anyllm"
	"github.com/MrWong99/langswap/pkg/provider/translate/httpapi"
	oatranslate "github.com/MrWong99/langswap/pkg/provider/translate/openai"
	"github.com/MrWong99/langswap/pkg/provider/tts"
	"github.com/MrWong99/langswap/pkg/provider/tts/coqui"
	"github.com/MrWong99/langswap/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "langswap.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the configuration file changes")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "langswap: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "langswap: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "langswap: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(&level))

	slog.Info("langswap starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(context.Background(), observe.TelemetryConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, application.Platform())

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-hup:
						slog.Info("SIGHUP received, reloading config")
						w.Reload()
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the translation provider names served through any-llm-go.
var anyllmBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslator("http", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []httpapi.Option
		if entry.Timeout > 0 {
			opts = append(opts, httpapi.WithTimeout(entry.Timeout))
		}
		return httpapi.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranslator("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []oatranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranslate.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oatranslate.WithTimeout(entry.Timeout))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oatranslate.WithOrganization(org))
		}
		return oatranslate.New(entry.APIKey, entry.Model, opts...)
	})

	// The any-llm backends share the same pattern: optional APIKey + optional
	// BaseURL. ollama is a local server and never gets a key.
	for _, providerName := range anyllmBackends {
		reg.RegisterTranslator(providerName, func(entry config.ProviderEntry) (translate.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	sampleRate := cfg.Capture.Device.SampleRate

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithSampleRate(sampleRate)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		silence, err := optDuration(entry.Options, "silence")
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		if silence > 0 {
			opts = append(opts, whisper.WithSilence(silence))
		}
		maxSegment, err := optDuration(entry.Options, "max_segment")
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		if maxSegment > 0 {
			opts = append(opts, whisper.WithMaxSegment(maxSegment))
		}
		if threshold, ok := optFloat(entry.Options, "threshold"); ok {
			opts = append(opts, whisper.WithThreshold(threshold))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: entry.Timeout}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(sampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		endpointing, err := optDuration(entry.Options, "endpointing")
		if err != nil {
			return nil, fmt.Errorf("deepgram: %w", err)
		}
		if _, set := entry.Options["endpointing"]; set {
			opts = append(opts, deepgram.WithEndpointing(endpointing))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if on, ok := entry.Options["multilingual"].(bool); ok {
			opts = append(opts, coqui.WithMultilingual(on))
		}
		if entry.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(entry.Timeout))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := optFloat(entry.Options, "stability")
		similarity, okB := optFloat(entry.Options, "similarity_boost")
		if okS && okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The translation provider is mandatory; STT and TTS are only built when
// configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{TranslateName: cfg.Translate.Name}
	fbCfg := fallbackConfig(cfg.Fallbacks)

	p, err := reg.CreateTranslator(cfg.Translate)
	if err != nil {
		return nil, fmt.Errorf("create translate provider %q: %w", cfg.Translate.Name, err)
	}
	ps.Translate = p
	slog.Info("provider created", "kind", "translate", "name", cfg.Translate.Name)
	if len(cfg.Fallbacks.Translate) > 0 {
		chain := resilience.NewTranslateFallback(p, cfg.Translate.Name, fbCfg)
		for _, entry := range cfg.Fallbacks.Translate {
			fp, err := reg.CreateTranslator(entry)
			if err != nil {
				return nil, fmt.Errorf("create translate fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fp)
			slog.Info("fallback provider created", "kind", "translate", "name", entry.Name)
		}
		ps.Translate = chain
	}

	if entry := cfg.Capture.Device.STT; entry.Name != "" {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown stt provider, device capture disabled", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", entry.Name)
		}
	}
	if ps.STT != nil && len(cfg.Fallbacks.STT) > 0 {
		chain := resilience.NewSTTFallback(ps.STT, cfg.Capture.Device.STT.Name, fbCfg)
		for _, entry := range cfg.Fallbacks.STT {
			fp, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fp)
			slog.Info("fallback provider created", "kind", "stt", "name", entry.Name)
		}
		ps.STT = chain
	}

	if entry := cfg.Synthesis.Device; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown tts provider, device synthesis disabled", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
		}
	}
	if ps.TTS != nil && len(cfg.Fallbacks.TTS) > 0 {
		chain := resilience.NewTTSFallback(ps.TTS, cfg.Synthesis.Device.Name, fbCfg)
		for _, entry := range cfg.Fallbacks.TTS {
			fp, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fp, optString(entry.Options, "voice"))
			slog.Info("fallback provider created", "kind", "tts", "name", entry.Name)
		}
		ps.TTS = chain
	}

	return ps, nil
}

// fallbackConfig maps the fallbacks section onto breaker settings and counts
// every failover in the provider metrics.
func fallbackConfig(fc config.FallbacksConfig) resilience.FallbackConfig {
	metrics := observe.DefaultMetrics()
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  fc.MaxFailures,
			ResetTimeout: fc.ResetTimeout,
		},
		OnFailover: func(kind, name string, _ error) {
			metrics.RecordFailover(context.Background(), kind, name)
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, platform config.Platform) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        LangSwap startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Platform", string(platform))
	printProvider("Translate", cfg.Translate.Name, cfg.Translate.Model)
	printProvider("STT", cfg.Capture.Device.STT.Name, cfg.Capture.Device.STT.Model)
	printProvider("TTS", cfg.Synthesis.Device.Name, cfg.Synthesis.Device.Model)
	printRow("Fallbacks", fallbackSummary(cfg.Fallbacks))
	printRow("Preferences", string(cfg.Preferences.Backend))
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Metrics", cfg.Telemetry.MetricsPath)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func fallbackSummary(fc config.FallbacksConfig) string {
	if fc.Empty() {
		return "none"
	}
	return fmt.Sprintf("%d/%d/%d", len(fc.Translate), len(fc.STT), len(fc.TTS))
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optDuration parses opts[key] as a Go duration string. A missing key is zero.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("options.%s: %w", key, err)
	}
	return d, nil
}

// optFloat reads a numeric option. YAML decodes whole numbers as int.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optString returns opts[key] when it is a string, otherwise "".
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
