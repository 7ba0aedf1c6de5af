package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"translate": {"http", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":       {"whisper", "deepgram"},
	"tts":       {"coqui", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. ${VAR} references are expanded from the environment before
// decoding so secrets can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Platform
	if cfg.Platform != "" && !cfg.Platform.IsValid() {
		errs = append(errs, fmt.Errorf("platform %q is invalid; valid values: auto, browser, device", cfg.Platform))
	}

	// Translation
	errs = append(errs, validateTranslateEntry("translate", cfg.Translate)...)

	// Fallbacks
	for i, e := range cfg.Fallbacks.Translate {
		errs = append(errs, validateTranslateEntry(fmt.Sprintf("fallbacks.translate[%d]", i), e)...)
	}
	for i, e := range cfg.Fallbacks.STT {
		errs = append(errs, validateEntryName("stt", fmt.Sprintf("fallbacks.stt[%d]", i), e)...)
	}
	for i, e := range cfg.Fallbacks.TTS {
		errs = append(errs, validateEntryName("tts", fmt.Sprintf("fallbacks.tts[%d]", i), e)...)
	}
	if len(cfg.Fallbacks.STT) > 0 && cfg.Capture.Device.STT.Name == "" {
		errs = append(errs, errors.New("fallbacks.stt requires capture.device.stt"))
	}
	if len(cfg.Fallbacks.TTS) > 0 && cfg.Synthesis.Device.Name == "" {
		errs = append(errs, errors.New("fallbacks.tts requires synthesis.device"))
	}
	if cfg.Fallbacks.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("fallbacks.max_failures %d must not be negative", cfg.Fallbacks.MaxFailures))
	}
	if cfg.Fallbacks.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("fallbacks.reset_timeout %s must not be negative", cfg.Fallbacks.ResetTimeout))
	}

	// Device platform providers
	validateProviderName("stt", cfg.Capture.Device.STT.Name)
	validateProviderName("tts", cfg.Synthesis.Device.Name)
	if cfg.Platform == PlatformDevice {
		if cfg.Capture.Device.STT.Name == "" {
			errs = append(errs, errors.New("capture.device.stt.name is required on the device platform"))
		}
		if cfg.Synthesis.Device.Name == "" {
			errs = append(errs, errors.New("synthesis.device.name is required on the device platform"))
		}
	}
	if cfg.Platform == PlatformAuto && (cfg.Capture.Device.STT.Name == "" || cfg.Synthesis.Device.Name == "") {
		slog.Warn("device providers are not configured; platform auto will only serve browser tabs")
	}
	if cfg.Capture.Device.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.device.sample_rate %d must be positive", cfg.Capture.Device.SampleRate))
	}
	if cfg.Capture.Device.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.device.max_duration %s must be positive", cfg.Capture.Device.MaxDuration))
	}

	// Synthesis
	if cfg.Synthesis.Rate < 0.1 || cfg.Synthesis.Rate > 10 {
		errs = append(errs, fmt.Errorf("synthesis.rate %.2f is out of range [0.1, 10]", cfg.Synthesis.Rate))
	}
	if cfg.Synthesis.Pitch <= 0 || cfg.Synthesis.Pitch > 2 {
		errs = append(errs, fmt.Errorf("synthesis.pitch %.2f is out of range (0, 2]", cfg.Synthesis.Pitch))
	}

	// Preferences
	p := cfg.Preferences
	switch {
	case !p.Backend.IsValid():
		errs = append(errs, fmt.Errorf("preferences.backend %q is invalid; valid values: file, redis, postgres, memory", p.Backend))
	case p.Backend == PreferencesFile && p.Path == "":
		errs = append(errs, errors.New("preferences.path is required for the file backend"))
	case p.Backend == PreferencesRedis && p.RedisAddr == "":
		errs = append(errs, errors.New("preferences.redis_addr is required for the redis backend"))
	case p.Backend == PreferencesPostgres && p.PostgresDSN == "":
		errs = append(errs, errors.New("preferences.postgres_dsn is required for the postgres backend"))
	}
	if p.Backend == PreferencesMemory {
		slog.Warn("preferences.backend is memory; the lesson mute setting will not survive a restart")
	}

	// Telemetry
	if !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", cfg.Telemetry.MetricsPath))
	}

	return errors.Join(errs...)
}

// validateTranslateEntry checks one translation provider block found at path.
func validateTranslateEntry(path string, e ProviderEntry) []error {
	var errs []error
	validateProviderName("translate", e.Name)
	switch e.Name {
	case "":
		errs = append(errs, fmt.Errorf("%s.name is required", path))
	case "http":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the http provider", path))
		}
	default:
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required for the %s provider", path, e.Name))
		}
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", path, e.Timeout))
	}
	return errs
}

// validateEntryName checks that a provider block found at path names a
// provider.
func validateEntryName(kind, path string, e ProviderEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", path)}
	}
	validateProviderName(kind, e.Name)
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
