package app

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/langswap/internal/config"
)

// closeCounter is a Pipeline whose only closer counts calls.
func closeCounter(id string, n *int) *Pipeline {
	return &Pipeline{ID: id, closers: []func() error{func() error { *n++; return nil }}}
}

func TestSessionManager_AddListStop(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	var closedA, closedB int
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := sm.Add(SessionInfo{ID: "b", Platform: config.PlatformBrowser, StartedAt: t0.Add(time.Minute)}, closeCounter("b", &closedB)); err != nil {
		t.Fatalf("Add(b): %v", err)
	}
	if err := sm.Add(SessionInfo{ID: "a", Platform: config.PlatformBrowser, StartedAt: t0}, closeCounter("a", &closedA)); err != nil {
		t.Fatalf("Add(a): %v", err)
	}
	if err := sm.Add(SessionInfo{ID: "a"}, closeCounter("a", &closedA)); err == nil {
		t.Error("duplicate ID accepted")
	}

	list := sm.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() = %+v, want a then b", list)
	}
	if p, ok := sm.Get("a"); !ok || p.ID != "a" {
		t.Errorf("Get(a) = %v, %v", p, ok)
	}

	if err := sm.Stop("a"); err != nil {
		t.Fatalf("Stop(a): %v", err)
	}
	if closedA != 1 {
		t.Errorf("pipeline a closed %d times, want 1", closedA)
	}
	if err := sm.Stop("a"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("second Stop(a) = %v, want ErrUnknownSession", err)
	}

	if err := sm.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if closedB != 1 || sm.Len() != 0 {
		t.Errorf("after StopAll: closedB=%d len=%d", closedB, sm.Len())
	}
}

func TestSessionManager_AddDefaultsStartedAt(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	var n int
	if err := sm.Add(SessionInfo{ID: DeviceSessionID, Platform: config.PlatformDevice}, closeCounter(DeviceSessionID, &n)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := sm.List()[0].StartedAt; got.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestSessionManager_Each(t *testing.T) {
	t.Parallel()
	sm := NewSessionManager()
	var n int
	for _, id := range []string{"x", "y", "z"} {
		if err := sm.Add(SessionInfo{ID: id}, closeCounter(id, &n)); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	seen := map[string]bool{}
	sm.Each(func(p *Pipeline) { seen[p.ID] = true })
	if len(seen) != 3 {
		t.Errorf("Each visited %v", seen)
	}
}

func TestPipelineClose_ReverseOrderAndJoinedErrors(t *testing.T) {
	t.Parallel()
	var order []int
	boom := errors.New("boom")
	p := &Pipeline{ID: "p", closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
		func() error { order = append(order, 3); return nil },
	}}
	if err := p.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() = %v, want boom", err)
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
