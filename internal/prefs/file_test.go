package prefs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/langswap/internal/prefs"
)

func TestFile_MissingReadsFalse(t *testing.T) {
	f, err := prefs.NewFile(filepath.Join(t.TempDir(), "prefs.yaml"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	muted, err := f.LoadMute(context.Background())
	if err != nil || muted {
		t.Errorf("LoadMute = %v, %v; want false, nil", muted, err)
	}
}

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	f, _ := prefs.NewFile(path)
	ctx := context.Background()

	if err := f.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := f.SaveMute(ctx, true); err != nil {
		t.Fatalf("SaveMute: %v", err)
	}

	reopened, _ := prefs.NewFile(path)
	muted, err := reopened.LoadMute(ctx)
	if err != nil || !muted {
		t.Fatalf("LoadMute = %v, %v; want true, nil", muted, err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "lesson_muted: true") {
		t.Errorf("file content = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the preferences file", len(entries))
	}
}

func TestFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("lesson_muted: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, _ := prefs.NewFile(path)
	if _, err := f.LoadMute(context.Background()); err == nil {
		t.Error("LoadMute accepted a corrupt file")
	}
}

func TestNewFile_EmptyPath(t *testing.T) {
	if _, err := prefs.NewFile(""); err == nil {
		t.Error("NewFile accepted an empty path")
	}
}

func TestMemory(t *testing.T) {
	m := &prefs.Memory{}
	ctx := context.Background()
	_ = m.SaveMute(ctx, true)
	if muted, _ := m.LoadMute(ctx); !muted {
		t.Error("LoadMute = false after SaveMute(true)")
	}
	if m.Saves() != 1 {
		t.Errorf("Saves = %d", m.Saves())
	}
}
