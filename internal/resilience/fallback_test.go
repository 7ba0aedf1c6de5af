package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

var errPermanent = errors.New("permanent")

func newStringGroup(cfg FallbackConfig) *FallbackGroup[string] {
	if cfg.CircuitBreaker.MaxFailures == 0 {
		cfg.CircuitBreaker.MaxFailures = 3
	}
	fg := NewFallbackGroup("primary", "primary", cfg)
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   []string
		wantCalls []string
		wantErr   error
	}{
		{name: "primary answers", wantCalls: []string{"primary"}},
		{name: "secondary answers", failing: []string{"primary"}, wantCalls: []string{"primary", "secondary"}},
		{name: "all fail", failing: []string{"primary", "secondary"}, wantCalls: []string{"primary", "secondary"}, wantErr: ErrAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := newStringGroup(FallbackConfig{Kind: "translate"})

			var calls []string
			err := fg.Execute(context.Background(), func(v string) error {
				calls = append(calls, v)
				if slices.Contains(tt.failing, v) {
					return errTest
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, errTest) {
				t.Errorf("err = %v, want the last backend error wrapped", err)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	var skipped []error
	fg := newStringGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		OnFailover: func(_, name string, err error) {
			if name == "primary" {
				skipped = append(skipped, err)
			}
		},
	})

	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var called string
	if err := fg.Execute(context.Background(), func(v string) error {
		called = v
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
	if len(skipped) != 3 || !errors.Is(skipped[2], ErrCircuitOpen) {
		t.Errorf("failover hook saw %v, want two failures then ErrCircuitOpen", skipped)
	}

	var states []State
	fg.Each(func(_ string, _ string, s State) bool {
		states = append(states, s)
		return true
	})
	if !slices.Equal(states, []State{StateOpen, StateClosed}) {
		t.Errorf("states = %v, want [open closed]", states)
	}
}

func TestFallbackGroup_PermanentErrorStopsChain(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
		Permanent:      func(err error) bool { return errors.Is(err, errPermanent) },
	})

	var calls []string
	err := fg.Execute(context.Background(), func(v string) error {
		calls = append(calls, v)
		return errPermanent
	})
	if !errors.Is(err, errPermanent) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the permanent error unwrapped", err)
	}
	if !slices.Equal(calls, []string{"primary"}) {
		t.Errorf("calls = %v, want [primary]", calls)
	}

	var primaryState State
	fg.Each(func(name string, _ string, s State) bool {
		primaryState = s
		return false
	})
	if primaryState != StateClosed {
		t.Errorf("primary state = %v, want closed", primaryState)
	}
}

func TestFallbackGroup_CancelledContext(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(FallbackConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	err := fg.Execute(ctx, func(v string) error {
		calls = append(calls, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v * 2, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 40 {
		t.Errorf("result = %d, want 40", got)
	}
	if fg.Len() != 2 || fg.Primary() != 10 {
		t.Errorf("Len = %d, Primary = %d", fg.Len(), fg.Primary())
	}
}
