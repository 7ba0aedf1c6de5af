package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend of a [FallbackGroup] failed or
// had an open circuit. The last backend error is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// Kind names the provider kind in logs and hooks, e.g. "translate".
	Kind string

	// CircuitBreaker is the template for each backend's breaker. Name is
	// overwritten with "<kind>/<backend name>".
	CircuitBreaker CircuitBreakerConfig

	// Permanent reports errors that another backend would not fix, such as
	// an invalid request. They are returned unchanged, do not count against
	// the breaker and stop the chain.
	Permanent func(error) bool

	// OnFailover, if set, is called each time a call moves past a backend.
	// err is [ErrCircuitOpen] when the backend was skipped.
	OnFailover func(kind, name string, err error)
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and its fallbacks in the order they
// are tried. Entries must be added before the group is shared.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after every entry added before it.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	if fg.cfg.Kind != "" {
		cb.Name = fg.cfg.Kind + "/" + name
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cb),
	})
}

// Len returns the number of backends in the group.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Primary returns the first backend.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Each calls fn for every backend in order until fn returns false.
func (fg *FallbackGroup[T]) Each(fn func(name string, value T, state State) bool) {
	for i := range fg.entries {
		e := &fg.entries[i]
		if !fn(e.name, e.value, e.breaker.State()) {
			return
		}
	}
}

// Execute calls fn with each backend in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn with each backend of fg in order and returns the
// first successful result. Backends with an open circuit are skipped. A
// cancelled ctx or a permanent error ends the chain with that error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var (
			result  R
			callErr error
		)
		err := e.breaker.Execute(func() error {
			result, callErr = fn(e.value)
			if callErr != nil && fg.passThrough(ctx, callErr) {
				return nil
			}
			return callErr
		})
		switch {
		case err == nil && callErr == nil:
			return result, nil
		case err == nil:
			return zero, callErr
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "kind", fg.cfg.Kind, "provider", e.name)
		} else if i < len(fg.entries)-1 {
			slog.Warn("provider failed, trying next", "kind", fg.cfg.Kind, "provider", e.name, "err", err)
		}
		if fg.cfg.OnFailover != nil && i < len(fg.entries)-1 {
			fg.cfg.OnFailover(fg.cfg.Kind, e.name, err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// passThrough reports whether err should be returned to the caller without
// trying another backend.
func (fg *FallbackGroup[T]) passThrough(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return fg.cfg.Permanent != nil && fg.cfg.Permanent(err)
}
