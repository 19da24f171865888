// Package observe provides application-wide observability primitives for the
// War Room server: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all War Room metrics.
const meterName = "github.com/MrWong99/warroom"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks end-to-end workflow latency. Use with attributes:
	//   attribute.String("workflow", ...), attribute.String("status", ...)
	GenerationDuration metric.Float64Histogram

	// CouncilConnectDuration tracks the time from connect request to the
	// session being fully acquired.
	CouncilConnectDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CouncilFramesSent counts microphone frames streamed to the model.
	CouncilFramesSent metric.Int64Counter

	// CouncilChunksPlayed counts model audio chunks scheduled for playback.
	CouncilChunksPlayed metric.Int64Counter

	// CouncilChunksDropped counts model audio chunks that could not be decoded.
	CouncilChunksDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live council sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of connected event-stream clients.
	ActiveStreams metric.Int64UpDownCounter

	// StoredArtifacts tracks the number of generated artifacts held in memory.
	StoredArtifacts metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Video
// generation routinely takes minutes, hence the long tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("warroom.generation.duration",
		metric.WithDescription("Latency of generation workflows."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CouncilConnectDuration, err = m.Float64Histogram("warroom.council.connect.duration",
		metric.WithDescription("Latency of establishing a council session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("warroom.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CouncilFramesSent, err = m.Int64Counter("warroom.council.frames_sent",
		metric.WithDescription("Total microphone frames streamed to the model."),
	); err != nil {
		return nil, err
	}
	if met.CouncilChunksPlayed, err = m.Int64Counter("warroom.council.chunks_played",
		metric.WithDescription("Total model audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.CouncilChunksDropped, err = m.Int64Counter("warroom.council.chunks_dropped",
		metric.WithDescription("Total model audio chunks dropped as malformed."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("warroom.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("warroom.council.active_sessions",
		metric.WithDescription("Number of live council sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("warroom.web.active_streams",
		metric.WithDescription("Number of connected event-stream clients."),
	); err != nil {
		return nil, err
	}
	if met.StoredArtifacts, err = m.Int64UpDownCounter("warroom.artifacts.stored",
		metric.WithDescription("Number of generated artifacts held in memory."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("warroom.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route pattern and status."),
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordGeneration records the duration and outcome of one workflow run.
func (m *Metrics) RecordGeneration(ctx context.Context, workflow, status string, d time.Duration) {
	m.GenerationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("workflow", workflow),
			attribute.String("status", status),
		),
	)
}
