// Package observe provides application-wide observability primitives for
// voxalign: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxalign metrics.
const meterName = "github.com/voxalign/voxalign"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// LookupDuration tracks playback-position → word lookup latency. The
	// buckets are sub-millisecond: lookups run on the hot path of every
	// position update.
	LookupDuration metric.Float64Histogram

	// NormalizeDuration tracks content-load payload normalization latency
	// (shape conversion, alignment resolution, segmentation, index build).
	NormalizeDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// AlignmentResolutions counts character-span resolutions by outcome.
	// Use with attribute.String("strategy", ...) — one of exact,
	// inclusive_end, index_shift, window_scan, unresolved.
	AlignmentResolutions metric.Int64Counter

	// CursorCacheHits and CursorCacheMisses count locality-cache outcomes
	// across all trackers.
	CursorCacheHits   metric.Int64Counter
	CursorCacheMisses metric.Int64Counter

	// HighlightEmissions counts change notifications delivered to clients.
	HighlightEmissions metric.Int64Counter

	// PositionsReceived counts position updates received from clients.
	// Comparing against HighlightEmissions shows how much coalescing and
	// change suppression save downstream.
	PositionsReceived metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sync sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// lookupBuckets defines histogram boundaries (in seconds) for per-frame
// lookup latency. The target is sub-millisecond even at tens of thousands of
// words, so the buckets resolve the microsecond range.
var lookupBuckets = []float64{
	0.000001, 0.0000025, 0.000005, 0.00001, 0.000025, 0.00005,
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
}

// loadBuckets defines histogram boundaries (in seconds) for content-load
// normalization, which runs once per content item.
var loadBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LookupDuration, err = m.Float64Histogram("voxalign.lookup.duration",
		metric.WithDescription("Latency of position-to-word lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lookupBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NormalizeDuration, err = m.Float64Histogram("voxalign.normalize.duration",
		metric.WithDescription("Latency of timing payload normalization at content load."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxalign.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AlignmentResolutions, err = m.Int64Counter("voxalign.alignment.resolutions",
		metric.WithDescription("Character-span resolutions by strategy."),
	); err != nil {
		return nil, err
	}
	if met.CursorCacheHits, err = m.Int64Counter("voxalign.cursor.cache_hits",
		metric.WithDescription("Locality-cache hits across all trackers."),
	); err != nil {
		return nil, err
	}
	if met.CursorCacheMisses, err = m.Int64Counter("voxalign.cursor.cache_misses",
		metric.WithDescription("Locality-cache misses across all trackers."),
	); err != nil {
		return nil, err
	}
	if met.HighlightEmissions, err = m.Int64Counter("voxalign.highlight.emissions",
		metric.WithDescription("Highlight change notifications delivered to clients."),
	); err != nil {
		return nil, err
	}
	if met.PositionsReceived, err = m.Int64Counter("voxalign.positions.received",
		metric.WithDescription("Position updates received, by coalescing outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxalign.active_sessions",
		metric.WithDescription("Number of live sync sessions."),
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
