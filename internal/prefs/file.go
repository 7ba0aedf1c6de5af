package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDoc is the on-disk layout of the preferences file.
type fileDoc struct {
	LessonMuted bool `yaml:"lesson_muted"`
}

// File stores preferences in a YAML file. Writes go to a temporary file in
// the same directory that is then renamed over the target, so a crash never
// leaves a half-written file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File store at path. The file is created on first save.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("prefs: file path must not be empty")
	}
	return &File{path: path}, nil
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// LoadMute implements [MuteStore].
func (f *File) LoadMute(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return false, err
	}
	return doc.LessonMuted, nil
}

// SaveMute implements [MuteStore].
func (f *File) SaveMute(_ context.Context, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.LessonMuted = muted
	return f.write(doc)
}

func (f *File) read() (fileDoc, error) {
	var doc fileDoc
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("prefs: read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("prefs: parse %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) write(doc fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("prefs: replace %s: %w", f.path, err)
	}
	return nil
}

// Ping checks that the directory of the file exists or can be created.
func (f *File) Ping(context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: %s: %w", dir, err)
	}
	return nil
}

// Close implements [Store].
func (f *File) Close() error { return nil }
