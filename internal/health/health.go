// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 as long as the process can serve HTTP. GET /readyz
// runs every registered [Check] in parallel and answers 503 if any of them
// fails. Both reply with a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Check probes one dependency and returns nil when it is usable.
type Check func(ctx context.Context) error

// ErrUnavailable is returned by checks built with [Available].
var ErrUnavailable = errors.New("unavailable")

// Pinger is anything with a reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p.Ping.
func Ping(p Pinger) Check { return p.Ping }

// Available turns a boolean capability probe into a check.
func Available(probe func(ctx context.Context) bool) Check {
	return func(ctx context.Context) error {
		if probe(ctx) {
			return nil
		}
		return ErrUnavailable
	}
}

// Result is the outcome of one check.
type Result struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Report is the body of both probe endpoints.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Failed lists the names of failing checks in sorted order.
func (r Report) Failed() []string {
	var names []string
	for name, res := range r.Checks {
		if !res.OK {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler runs the registered checks. Add must not be called once the
// handler is serving.
type Handler struct {
	timeout time.Duration
	names   []string
	checks  map[string]Check
}

// New returns a handler with no checks.
func New(opts ...Option) *Handler {
	h := &Handler{timeout: DefaultTimeout, checks: make(map[string]Check)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Add registers c under name, replacing an earlier check of the same name.
func (h *Handler) Add(name string, c Check) *Handler {
	if _, dup := h.checks[name]; !dup {
		h.names = append(h.names, name)
	}
	h.checks[name] = c
	return h
}

// Evaluate runs all checks concurrently and collects their results.
func (h *Handler) Evaluate(ctx context.Context) Report {
	rep := Report{Status: "ok", Checks: make(map[string]Result, len(h.names))}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, name := range h.names {
		check := h.checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			start := time.Now()
			err := check(cctx)
			res := Result{OK: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Error = err.Error()
			}
			mu.Lock()
			rep.Checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if len(rep.Failed()) > 0 {
		rep.Status = "fail"
	}
	return rep
}

// Register mounts /healthz and /readyz on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, Report{Status: "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		rep := h.Evaluate(r.Context())
		status := http.StatusOK
		if rep.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		reply(w, status, rep)
	})
}

func reply(w http.ResponseWriter, status int, rep Report) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
