package capture

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultRecorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func TestTracker_SingleSlot(t *testing.T) {
	tr := NewTracker("test")

	first, err := tr.Begin("en", func(Result) {})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if first.State() != StateRequesting {
		t.Fatalf("state = %s, want requesting", first.State())
	}

	second, err := tr.Begin("th", func(Result) {})
	if !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("err = %v, want ErrAlreadyCapturing", err)
	}
	if second == nil || second.State() != StateFailed {
		t.Fatalf("second session = %+v, want Failed", second)
	}
	if first.State() != StateRequesting {
		t.Fatalf("active session changed to %s", first.State())
	}
	if tr.Current() != first {
		t.Fatal("Current() is not the first session")
	}
}

func TestTracker_MonotonicTokens(t *testing.T) {
	tr := NewTracker("test")
	var last uint64
	for i := 0; i < 5; i++ {
		s, err := tr.Begin("en", nil)
		if err != nil {
			t.Fatalf("Begin %d: %v", i, err)
		}
		if s.ID() <= last {
			t.Fatalf("token %d not greater than %d", s.ID(), last)
		}
		last = s.ID()
		tr.Complete(s.ID(), "")
	}
}

func TestTracker_ExactlyOneTerminalEvent(t *testing.T) {
	tr := NewTracker("test")
	rec := &resultRecorder{}
	s, _ := tr.Begin("en", rec.record)
	tr.MarkListening(s.ID())

	if !tr.Complete(s.ID(), "hello") {
		t.Fatal("Complete returned false")
	}
	if tr.Complete(s.ID(), "again") {
		t.Error("second Complete accepted")
	}
	if tr.Fail(s.ID(), errors.New("late")) {
		t.Error("Fail after Complete accepted")
	}

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Transcript != "hello" || got[0].Err != nil {
		t.Errorf("result = %+v", got[0])
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed", s.State())
	}
}

func TestTracker_StaleTokenIgnored(t *testing.T) {
	tr := NewTracker("test")
	rec := &resultRecorder{}

	old, _ := tr.Begin("en", rec.record)
	tr.Reject(old.ID())

	cur, _ := tr.Begin("en", rec.record)
	if tr.Complete(old.ID(), "stale") {
		t.Fatal("stale token completed the new session")
	}
	if cur.State() != StateRequesting {
		t.Fatalf("current state = %s", cur.State())
	}
	if len(rec.all()) != 0 {
		t.Fatalf("results delivered: %+v", rec.all())
	}
}

func TestTracker_FailClassifies(t *testing.T) {
	tr := NewTracker("test")
	rec := &resultRecorder{}
	s, _ := tr.Begin("en", rec.record)

	tr.Fail(s.ID(), NewError(KindPermissionDenied, "not-allowed", nil))

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d results", len(got))
	}
	if !errors.Is(got[0].Err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", got[0].Err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestTracker_StopGraceCompletes(t *testing.T) {
	tr := NewTracker("test")
	done := make(chan Result, 1)
	s, _ := tr.Begin("en", func(r Result) { done <- r })
	tr.MarkListening(s.ID())

	if !tr.MarkStopping(s.ID(), 10*time.Millisecond) {
		t.Fatal("MarkStopping returned false")
	}
	if !tr.Stopping(s.ID()) {
		t.Fatal("Stopping() = false")
	}

	select {
	case r := <-done:
		if r.Err != nil || r.Transcript != "" {
			t.Errorf("result = %+v, want empty completion", r)
		}
	case <-time.After(time.Second):
		t.Fatal("grace timer never completed the session")
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s", s.State())
	}
	if tr.Current() != nil {
		t.Error("slot not released")
	}
}

func TestTracker_AbortDeliversNothing(t *testing.T) {
	tr := NewTracker("test")
	rec := &resultRecorder{}
	s, _ := tr.Begin("en", rec.record)

	if got := tr.Abort(); got != s {
		t.Fatalf("Abort() = %v, want active session", got)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s", s.State())
	}
	if len(rec.all()) != 0 {
		t.Error("Abort delivered a result")
	}
	if tr.Abort() != nil {
		t.Error("second Abort returned a session")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{NewError(KindNotAvailable, "", nil), KindNotAvailable},
		{ErrPermissionDenied, KindPermissionDenied},
		{errors.New("boom"), KindRecognition},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
