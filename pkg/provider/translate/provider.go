// Package translate defines the Provider interface for translation backends.
//
// A translation provider is a stateless request/response wrapper around a
// remote service: the app's own translation endpoint (httpapi), or a general
// purpose LLM prompted to translate (anyllm, openai). Providers never retry;
// a retry is a fresh user action.
//
// Implementations must be safe for concurrent use.
package translate

import "context"

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate sends req to the backend and waits for the translated text.
	// The request is validated first; invalid requests fail with
	// [ErrInvalidRequest] without contacting the backend. Non-success answers
	// from HTTP backends are reported as *[Error].
	Translate(ctx context.Context, req Request) (*Response, error)
}

// Pinger is implemented by providers that can cheaply check reachability for
// readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}
