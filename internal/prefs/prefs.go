// Package prefs persists the lesson mute preference.
//
// The preference is a single process-wide boolean. Three backends are
// provided: a YAML file for single-device installs, Redis and PostgreSQL for
// deployments that share settings between instances. A missing value reads as
// false in every backend.
package prefs

import (
	"context"
	"sync"
)

// DefaultKey is the key the mute flag is stored under.
const DefaultKey = "lesson_muted"

// MuteStore reads and writes the mute flag.
type MuteStore interface {
	LoadMute(ctx context.Context) (bool, error)
	SaveMute(ctx context.Context, muted bool) error
}

// Store is a MuteStore with a lifecycle, as built from configuration.
type Store interface {
	MuteStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases connections.
	Close() error
}

// Memory is a Store that keeps the flag in memory. It is used for tests and
// when no persistence is configured.
type Memory struct {
	mu    sync.Mutex
	muted bool

	// LoadErr and SaveErr, if set, are returned by the respective calls.
	LoadErr error
	SaveErr error

	saves int
}

// LoadMute implements [MuteStore].
func (m *Memory) LoadMute(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return false, m.LoadErr
	}
	return m.muted, nil
}

// SaveMute implements [MuteStore].
func (m *Memory) SaveMute(_ context.Context, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.muted = muted
	return nil
}

// Saves returns the number of SaveMute calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Ping implements [Store].
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements [Store].
func (m *Memory) Close() error { return nil }

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*Postgres)(nil)
)
