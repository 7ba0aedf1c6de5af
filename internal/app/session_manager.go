package app

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/langswap/internal/config"
)

// ErrUnknownSession is returned when no live pipeline has the requested ID.
var ErrUnknownSession = errors.New("app: unknown session")

// SessionInfo holds metadata about a live pipeline.
type SessionInfo struct {
	// ID is the bridge connection ID, or "device" for the device pipeline.
	ID string `json:"id"`

	// Platform is where capture and synthesis run.
	Platform config.Platform `json:"platform"`

	// StartedAt is when the pipeline was built.
	StartedAt time.Time `json:"started_at"`
}

// SessionManager tracks the live pipelines. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	info     SessionInfo
	pipeline *Pipeline
}

// NewSessionManager returns an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*managedSession)}
}

// Add registers p under info.ID. It fails if the ID is taken.
func (sm *SessionManager) Add(info SessionInfo, p *Pipeline) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.sessions[info.ID]; ok {
		return fmt.Errorf("app: session %q already registered", info.ID)
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	sm.sessions[info.ID] = &managedSession{info: info, pipeline: p}

	slog.Info("session started",
		"session_id", info.ID,
		"platform", info.Platform,
	)
	return nil
}

// Get returns the pipeline registered under id.
func (sm *SessionManager) Get(id string) (*Pipeline, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	return s.pipeline, true
}

// List returns metadata for all live pipelines, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.info)
	}
	sm.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of live pipelines.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Each calls fn for every live pipeline. fn must not call back into sm.
func (sm *SessionManager) Each(fn func(*Pipeline)) {
	sm.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		pipelines = append(pipelines, s.pipeline)
	}
	sm.mu.Unlock()

	for _, p := range pipelines {
		fn(p)
	}
}

// Stop unregisters and closes the pipeline with the given id.
func (sm *SessionManager) Stop(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	err := s.pipeline.Close()
	slog.Info("session stopped", "session_id", id, "duration", time.Since(s.info.StartedAt).Round(time.Second))
	return err
}

// StopAll closes every live pipeline.
func (sm *SessionManager) StopAll() error {
	var errs []error
	for _, info := range sm.List() {
		if err := sm.Stop(info.ID); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
