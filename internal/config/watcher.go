package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] looks at the file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a running server in step with its config file. It polls the
// file, and when an edit parses, validates and actually changes a setting it
// hands the previous and the new config to the change callback. Edits that do
// not validate are logged and the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	digest  [sha256.Size]byte

	reload chan struct{}
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// fileStamp is the cheap part of change detection.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts watching it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		reload:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp, w.digest = snap.cfg, snap.stamp, snap.digest

	go w.run()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload asks the watcher to re-read the file now instead of waiting for the
// next tick. It does not block.
func (w *Watcher) Reload() {
	select {
	case w.reload <- struct{}{}:
	default:
	}
}

// Stop ends the watch and waits for an in-flight callback to return. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.exited
}

func (w *Watcher) run() {
	defer close(w.exited)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.check(false)
		case <-w.reload:
			w.check(true)
		}
	}
}

// check re-reads the file if it looks different, or unconditionally when
// forced.
func (w *Watcher) check(force bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watched file unavailable", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := w.stamp == fileStamp{size: info.Size(), modTime: info.ModTime()}
	w.mu.Unlock()
	if unchanged && !force {
		return
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.stamp = snap.stamp
	if snap.digest == w.digest {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.digest = snap.cfg, snap.digest
	w.mu.Unlock()

	if Diff(old, snap.cfg).Empty() {
		slog.Debug("config: file changed without effective changes", "path", w.path)
		return
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, snap.cfg)
	}
}

type snapshot struct {
	cfg    *Config
	stamp  fileStamp
	digest [sha256.Size]byte
}

// read loads and validates the file.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{
		cfg:    cfg,
		stamp:  fileStamp{size: info.Size(), modTime: info.ModTime()},
		digest: sha256.Sum256(data),
	}, nil
}
