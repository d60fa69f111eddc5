// Package observe provides application-wide observability primitives for
// EarSense: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all EarSense metrics.
const meterName = "github.com/MrWong99/earsense"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChunkDuration tracks the processing time of one audio chunk through a
	// detector (filter, buffer, detect, classify). Use with attribute:
	//   attribute.String("detector", ...)
	ChunkDuration metric.Float64Histogram

	// ClassifyDuration tracks classifier latency. Use with attribute:
	//   attribute.String("detector", ...)
	ClassifyDuration metric.Float64Histogram

	// TrainDuration tracks the time to build and store one dataset. Use with
	// attribute:
	//   attribute.String("dataset", ...)
	TrainDuration metric.Float64Histogram

	// --- Counters ---

	// Events counts emitted detection events. Use with attributes:
	//   attribute.String("detector", ...), attribute.String("label", ...)
	Events metric.Int64Counter

	// PeaksRejected counts candidate peaks discarded by debounce. Use with
	// attributes:
	//   attribute.String("detector", ...), attribute.String("reason", ...)
	PeaksRejected metric.Int64Counter

	// StoreOperations counts training store calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...), attribute.String("status", ...)
	StoreOperations metric.Int64Counter

	// --- Error counters ---

	// ClassifyErrors counts classifications that failed and were skipped.
	// Use with attributes:
	//   attribute.String("detector", ...), attribute.String("reason", ...)
	ClassifyErrors metric.Int64Counter

	// DeviceErrors counts audio devices that failed to open or read. Use with
	// attribute:
	//   attribute.String("device", ...)
	DeviceErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running detection sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// processingBuckets defines histogram bucket boundaries (in seconds) for
// per-chunk signal processing, which must stay well below one chunk of audio.
var processingBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// trainingBuckets defines histogram bucket boundaries (in seconds) for
// offline dataset training.
var trainingBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("earsense.chunk.duration",
		metric.WithDescription("Processing time of one audio chunk by a detector."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("earsense.classify.duration",
		metric.WithDescription("Latency of event classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TrainDuration, err = m.Float64Histogram("earsense.train.duration",
		metric.WithDescription("Time to build and store one training dataset."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(trainingBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Events, err = m.Int64Counter("earsense.events",
		metric.WithDescription("Total detection events by detector and label."),
	); err != nil {
		return nil, err
	}
	if met.PeaksRejected, err = m.Int64Counter("earsense.peaks.rejected",
		metric.WithDescription("Total candidate peaks rejected by detector and reason."),
	); err != nil {
		return nil, err
	}
	if met.StoreOperations, err = m.Int64Counter("earsense.store.operations",
		metric.WithDescription("Total training store operations by backend, operation, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ClassifyErrors, err = m.Int64Counter("earsense.classify.errors",
		metric.WithDescription("Total skipped classifications by detector and reason."),
	); err != nil {
		return nil, err
	}
	if met.DeviceErrors, err = m.Int64Counter("earsense.device.errors",
		metric.WithDescription("Total audio device failures by device."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("earsense.active_sessions",
		metric.WithDescription("Number of running detection sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earsense.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
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

// RecordEvent records one emitted detection event.
func (m *Metrics) RecordEvent(ctx context.Context, detector, label string) {
	m.Events.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("detector", detector),
			attribute.String("label", label),
		),
	)
}

// RecordRejected records n peaks rejected for reason. Zero is not recorded.
func (m *Metrics) RecordRejected(ctx context.Context, detector, reason string, n int) {
	if n <= 0 {
		return
	}
	m.PeaksRejected.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("detector", detector),
			attribute.String("reason", reason),
		),
	)
}

// RecordStoreOp records a training store operation with the standard
// attribute set.
func (m *Metrics) RecordStoreOp(ctx context.Context, backend, op, status string) {
	m.StoreOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordClassifyError records a classification that was skipped.
func (m *Metrics) RecordClassifyError(ctx context.Context, detector, reason string) {
	m.ClassifyErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("detector", detector),
			attribute.String("reason", reason),
		),
	)
}

// RecordDeviceError records an audio device failure.
func (m *Metrics) RecordDeviceError(ctx context.Context, device string) {
	m.DeviceErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("device", device)),
	)
}

// RecordTrain records the time spent building and storing dataset.
func (m *Metrics) RecordTrain(ctx context.Context, dataset string, d time.Duration) {
	m.TrainDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("dataset", dataset)),
	)
}
