// Package observe holds the OpenTelemetry metrics and tracing used across
// LangSwap, plus the HTTP middleware that logs and measures API requests.
//
// [Setup] installs the global providers with a Prometheus reader. Code that
// records metrics uses [DefaultMetrics]; tests build their own [Metrics] from
// a ManualReader with [NewMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranslateDuration tracks translation round-trip latency. Use with
	// attribute.String("provider", ...).
	TranslateDuration metric.Float64Histogram

	// CaptureDuration tracks the time from capture start to its terminal
	// event. Use with attribute.String("backend", ...).
	CaptureDuration metric.Float64Histogram

	// --- Counters ---

	// TranslateRequests counts translation calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	TranslateRequests metric.Int64Counter

	// CaptureSessions counts finished capture sessions. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("outcome", ...)
	CaptureSessions metric.Int64Counter

	// Utterances counts synthesis utterances by how they ended. Use with
	// attributes:
	//   attribute.String("source", ...), attribute.String("outcome", ...)
	Utterances metric.Int64Counter

	// Notices counts user-visible notices. Use with attribute:
	//   attribute.String("code", ...)
	Notices metric.Int64Counter

	// Failovers counts calls that moved past a failing provider. Use with
	// attributes:
	//   attribute.String("kind", ...), attribute.String("provider", ...)
	Failovers metric.Int64Counter

	// --- Gauges ---

	// ActiveUtterances is 1 while an utterance is audible and 0 otherwise.
	ActiveUtterances metric.Int64UpDownCounter

	// BridgeConnections tracks connected browser tabs.
	BridgeConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// translation calls and voice capture.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scope)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("langswap.translate.duration",
		metric.WithDescription("Latency of translation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("langswap.capture.duration",
		metric.WithDescription("Time from capture start to its terminal event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranslateRequests, err = m.Int64Counter("langswap.translate.requests",
		metric.WithDescription("Total translation requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.CaptureSessions, err = m.Int64Counter("langswap.capture.sessions",
		metric.WithDescription("Total capture sessions by backend and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("langswap.synthesis.utterances",
		metric.WithDescription("Total synthesis utterances by source and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Notices, err = m.Int64Counter("langswap.notices",
		metric.WithDescription("Total user-visible notices by code."),
	); err != nil {
		return nil, err
	}
	if met.Failovers, err = m.Int64Counter("langswap.provider.failovers",
		metric.WithDescription("Total provider failovers by kind and failing provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveUtterances, err = m.Int64UpDownCounter("langswap.synthesis.active",
		metric.WithDescription("Number of audible utterances (0 or 1)."),
	); err != nil {
		return nil, err
	}
	if met.BridgeConnections, err = m.Int64UpDownCounter("langswap.bridge.connections",
		metric.WithDescription("Number of connected browser tabs."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("langswap.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranslation records one translation call: the request counter with
// provider and status, and the latency histogram with provider.
func (m *Metrics) RecordTranslation(ctx context.Context, provider, status string, seconds float64) {
	m.TranslateRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
	m.TranslateDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordCapture records a finished capture session.
func (m *Metrics) RecordCapture(ctx context.Context, backend, outcome string, seconds float64) {
	m.CaptureSessions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("outcome", outcome),
		),
	)
	m.CaptureDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordUtterance records how one synthesis utterance ended.
func (m *Metrics) RecordUtterance(ctx context.Context, source, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordNotice records a user-visible notice.
func (m *Metrics) RecordNotice(ctx context.Context, code string) {
	m.Notices.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordFailover records that a call of the given provider kind skipped past
// provider after it failed or its circuit was open.
func (m *Metrics) RecordFailover(ctx context.Context, kind, provider string) {
	m.Failovers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("provider", provider),
		),
	)
}
