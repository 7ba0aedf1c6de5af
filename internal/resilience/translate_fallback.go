package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/langswap/pkg/provider/translate"
)

// TranslateFallback implements [translate.Provider] over an ordered list of
// translation backends.
type TranslateFallback struct {
	group *FallbackGroup[translate.Provider]
}

var (
	_ translate.Provider = (*TranslateFallback)(nil)
	_ translate.Pinger   = (*TranslateFallback)(nil)
)

// NewTranslateFallback returns a fallback chain whose first backend is
// primary. Invalid requests are never retried on another backend.
func NewTranslateFallback(primary translate.Provider, primaryName string, cfg FallbackConfig) *TranslateFallback {
	if cfg.Kind == "" {
		cfg.Kind = "translate"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = TranslatePermanent
	}
	return &TranslateFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *TranslateFallback) AddFallback(name string, p translate.Provider) {
	f.group.AddFallback(name, p)
}

// Translate validates req and sends it to the first backend that answers.
func (f *TranslateFallback) Translate(ctx context.Context, req translate.Request) (*translate.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return ExecuteWithResult(ctx, f.group, func(p translate.Provider) (*translate.Response, error) {
		return p.Translate(ctx, req)
	})
}

// Ping succeeds when any backend is reachable. Backends without a Ping method
// count as reachable unless their circuit is open.
func (f *TranslateFallback) Ping(ctx context.Context) error {
	var errs []error
	reachable := false
	f.group.Each(func(name string, p translate.Provider, state State) bool {
		pinger, ok := p.(translate.Pinger)
		switch {
		case !ok && state != StateOpen:
			reachable = true
		case !ok:
			errs = append(errs, errors.New(name+": circuit open"))
		default:
			if err := pinger.Ping(ctx); err != nil {
				errs = append(errs, err)
			} else {
				reachable = true
			}
		}
		return !reachable
	})
	if reachable {
		return nil
	}
	return errors.Join(errs...)
}

// TranslatePermanent reports translation errors that another backend would
// answer the same way.
func TranslatePermanent(err error) bool {
	if errors.Is(err, translate.ErrInvalidRequest) {
		return true
	}
	var te *translate.Error
	if errors.As(err, &te) {
		switch te.StatusCode {
		case 400, 413, 422:
			return true
		}
	}
	return false
}
