package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/langswap/internal/config"
	"github.com/MrWong99/langswap/pkg/provider/translate"
	translatemock "github.com/MrWong99/langswap/pkg/provider/translate/mock"
)

const minimalYAML = `
translate:
  name: http
  base_url: http://localhost:9000
`

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"platform", cfg.Platform, config.PlatformAuto},
		{"sample_rate", cfg.Capture.Device.SampleRate, config.DefaultSampleRate},
		{"max_duration", cfg.Capture.Device.MaxDuration, config.DefaultMaxDuration},
		{"rate", cfg.Synthesis.Rate, 1.0},
		{"pitch", cfg.Synthesis.Pitch, 1.0},
		{"preferences.backend", cfg.Preferences.Backend, config.PreferencesFile},
		{"preferences.path", cfg.Preferences.Path, config.DefaultPreferencesPath},
		{"metrics_path", cfg.Telemetry.MetricsPath, config.DefaultMetricsPath},
		{"service_name", cfg.Telemetry.ServiceName, config.DefaultServiceName},
		{"fallbacks.max_failures", cfg.Fallbacks.MaxFailures, config.DefaultMaxFailures},
		{"fallbacks.reset_timeout", cfg.Fallbacks.ResetTimeout, config.DefaultResetTimeout},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
  allowed_origins: ["localhost:5173"]
platform: device
capture:
  device:
    stt:
      name: whisper
      base_url: http://localhost:8081
      options:
        language: th
    sample_rate: 16000
    max_duration: 20s
synthesis:
  rate: 0.9
  pitch: 1.1
  device:
    name: coqui
    base_url: http://localhost:5002
translate:
  name: openai
  api_key: sk-test
  model: gpt-4o-mini
  timeout: 10s
preferences:
  backend: redis
  redis_addr: localhost:6379
  redis_db: 2
notices:
  desktop: true
telemetry:
  metrics_path: /internal/metrics
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Platform != config.PlatformDevice {
		t.Errorf("platform = %q", cfg.Platform)
	}
	if cfg.Capture.Device.MaxDuration != 20*time.Second {
		t.Errorf("max_duration = %s", cfg.Capture.Device.MaxDuration)
	}
	if got := cfg.Capture.Device.STT.Options["language"]; got != "th" {
		t.Errorf("stt language option = %v", got)
	}
	if cfg.Translate.Timeout != 10*time.Second || cfg.Translate.Model != "gpt-4o-mini" {
		t.Errorf("translate = %+v", cfg.Translate)
	}
	if cfg.Preferences.RedisDB != 2 || !cfg.Notices.Desktop {
		t.Errorf("preferences = %+v notices = %+v", cfg.Preferences, cfg.Notices)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("LANGSWAP_TEST_TRANSLATE_URL", "http://translate.internal")
	yaml := `
translate:
  name: http
  base_url: ${LANGSWAP_TEST_TRANSLATE_URL}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Translate.BaseURL != "http://translate.internal" {
		t.Errorf("base_url = %q", cfg.Translate.BaseURL)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
platform: phone
synthesis:
  rate: 20
  pitch: 3
preferences:
  backend: postgres
telemetry:
  metrics_path: metrics
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{
		"server.log_level",
		"platform",
		"translate.name is required",
		"synthesis.rate",
		"synthesis.pitch",
		"preferences.postgres_dsn",
		"telemetry.metrics_path",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_ProviderRequirements(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "http without base_url",
			yaml: "translate:\n  name: http\n",
			want: "translate.base_url",
		},
		{
			name: "llm without model",
			yaml: "translate:\n  name: anthropic\n",
			want: "translate.model",
		},
		{
			name: "device platform without providers",
			yaml: minimalYAML + "platform: device\n",
			want: "capture.device.stt.name",
		},
		{
			name: "redis without address",
			yaml: minimalYAML + "preferences:\n  backend: redis\n",
			want: "preferences.redis_addr",
		},
		{
			name: "translate fallback without model",
			yaml: minimalYAML + "fallbacks:\n  translate:\n    - name: openai\n",
			want: "fallbacks.translate[0].model",
		},
		{
			name: "stt fallback without primary",
			yaml: minimalYAML + "fallbacks:\n  stt:\n    - name: deepgram\n",
			want: "fallbacks.stt requires capture.device.stt",
		},
		{
			name: "unnamed tts fallback",
			yaml: minimalYAML + "synthesis:\n  device:\n    name: coqui\nfallbacks:\n  tts:\n    - model: eleven_flash_v2_5\n",
			want: "fallbacks.tts[0].name",
		},
		{
			name: "tls without key",
			yaml: minimalYAML + "server:\n  tls:\n    cert_file: cert.pem\n",
			want: "server.tls",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "langswap.yaml")
	writeConfig(t, path, minimalYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Translate.Name != "http" {
		t.Errorf("translate.name = %q", cfg.Translate.Name)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterTranslator("mock", func(e config.ProviderEntry) (translate.Provider, error) {
		return &translatemock.Provider{Response: &translate.Response{Text: e.Model}}, nil
	})

	p, err := reg.CreateTranslator(config.ProviderEntry{Name: "mock", Model: "m"})
	if err != nil || p == nil {
		t.Fatalf("CreateTranslator = %v, %v", p, err)
	}
	if _, err := reg.CreateTranslator(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unregistered translator error = %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unregistered stt error = %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unregistered tts error = %v", err)
	}
	if names := reg.Names()["translate"]; len(names) != 1 || names[0] != "mock" {
		t.Errorf("Names = %v", reg.Names())
	}
}
