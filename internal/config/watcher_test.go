package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/langswap/internal/config"
)

const (
	baseYAML = `
server:
  log_level: info
translate:
  name: http
  base_url: http://localhost:9000
`
	slowerVoiceYAML = `
server:
  log_level: debug
synthesis:
  rate: 0.8
translate:
  name: http
  base_url: http://localhost:9000
`
	commentOnlyYAML = `
# reviewed
server:
  log_level: info
translate:
  name: http
  base_url: http://localhost:9000
`
	brokenYAML = `
server:
  log_level: bananas
`
)

type change struct{ old, new *config.Config }

// startWatcher writes content to a fresh file and watches it with a short
// interval. Changes are delivered on the returned channel.
func startWatcher(t *testing.T, content string) (*config.Watcher, string, <-chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "langswap.yaml")
	writeConfig(t, path, content)

	changes := make(chan change, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- change{old, new}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path, changes
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	// Push the mtime forward so the edit is visible even on coarse clocks.
	future := time.Now().Add(time.Duration(len(content)) * time.Millisecond)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func expectNoChange(t *testing.T, changes <-chan change, wait time.Duration) {
	t.Helper()
	select {
	case c := <-changes:
		t.Fatalf("unexpected change: %+v", config.Diff(c.old, c.new))
	case <-time.After(wait):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := startWatcher(t, baseYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Synthesis.Rate != 1 {
		t.Errorf("defaults not applied: rate = %v", cfg.Synthesis.Rate)
	}
}

func TestWatcher_AppliesLiveChanges(t *testing.T) {
	t.Parallel()
	w, path, changes := startWatcher(t, baseYAML)

	writeConfig(t, path, slowerVoiceYAML)

	var c change
	select {
	case c = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
	d := config.Diff(c.old, c.new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.SynthesisChanged || d.NewRate != 0.8 || d.NewPitch != 1 {
		t.Errorf("synthesis diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log level = %q", got)
	}
}

func TestWatcher_IgnoresEditsWithoutEffect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(t *testing.T, path string)
	}{
		{
			name: "touch",
			edit: func(t *testing.T, path string) {
				future := time.Now().Add(time.Hour)
				if err := os.Chtimes(path, future, future); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "comment added",
			edit: func(t *testing.T, path string) { writeConfig(t, path, commentOnlyYAML) },
		},
		{
			name: "invalid file",
			edit: func(t *testing.T, path string) { writeConfig(t, path, brokenYAML) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, path, changes := startWatcher(t, baseYAML)

			tt.edit(t, path)
			expectNoChange(t, changes, 200*time.Millisecond)

			if got := w.Current().Server.LogLevel; got != config.LogInfo {
				t.Errorf("Current() log level = %q, want the previous config", got)
			}
		})
	}
}

func TestWatcher_RecoversAfterInvalidEdit(t *testing.T) {
	t.Parallel()
	_, path, changes := startWatcher(t, baseYAML)

	writeConfig(t, path, brokenYAML)
	expectNoChange(t, changes, 100*time.Millisecond)
	writeConfig(t, path, slowerVoiceYAML)

	select {
	case c := <-changes:
		if c.old.Server.LogLevel != config.LogInfo {
			t.Errorf("old log level = %q, want the last valid config", c.old.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered after fixing the file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "langswap.yaml")
	writeConfig(t, path, baseYAML)

	changes := make(chan change, 1)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- change{old, new}
	}, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, slowerVoiceYAML)
	w.Reload()

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("Reload did not pick up the edit")
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	writeConfig(t, broken, brokenYAML)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), broken} {
		if _, err := config.NewWatcher(path, nil); err == nil {
			t.Errorf("NewWatcher(%s): want error", filepath.Base(path))
		}
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	w, _, _ := startWatcher(t, baseYAML)
	w.Stop()
	w.Stop()
}
