// Package mock provides a test double for the translate.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Response: &translate.Response{Text: "สวัสดี"}}
//	resp, _ := p.Translate(ctx, translate.Request{Text: "hello", SourceLang: "en", TargetLang: "th"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/langswap/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Req translate.Request
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Translate when Err is nil. A nil Response
	// echoes the request text.
	Response *translate.Response

	// Err, if non-nil, is returned by Translate.
	Err error

	// Gate, if non-nil, makes Translate block until a value is received or
	// ctx is done. Tests use it to hold a request in flight.
	Gate chan struct{}

	// Entered, if non-nil, receives a value when Translate starts waiting on
	// Gate.
	Entered chan struct{}

	// SkipValidation makes Translate skip req.Validate.
	SkipValidation bool

	// TranslateCalls records every call to Translate.
	TranslateCalls []TranslateCall
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Response, error) {
	p.mu.Lock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Req: req})
	gate, entered, skip := p.Gate, p.Entered, p.SkipValidation
	p.mu.Unlock()

	if !skip {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Response == nil {
		return &translate.Response{Text: req.Text, Provider: "mock"}, nil
	}
	r := *p.Response
	return &r, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranslateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranslateCall, len(p.TranslateCalls))
	copy(out, p.TranslateCalls)
	return out
}

// Set replaces the configured response and error.
func (p *Provider) Set(resp *translate.Response, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Response, p.Err = resp, err
}

var _ translate.Provider = (*Provider)(nil)
