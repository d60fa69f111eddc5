package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing the pipeline a process runs.
const (
	SampleRateKey   = "earsense.audio.sample_rate"
	DetectorsKey    = "earsense.detectors"
	StoreBackendKey = "earsense.store.backend"
)

// ProviderConfig describes the process to the telemetry backends.
type ProviderConfig struct {
	// ServiceName defaults to "earsense".
	ServiceName    string
	ServiceVersion string

	// SampleRate is the detector input rate in Hz. Zero omits it.
	SampleRate int

	// Detectors lists the detector kinds the process can run.
	Detectors []string

	// StoreBackend names the training store, e.g. "sqlite".
	StoreBackend string

	// TraceExporter receives finished spans. Without one, spans are sampled
	// for correlation IDs but never exported.
	TraceExporter sdktrace.SpanExporter
}

// Resource builds the OTel resource for cfg. OTEL_RESOURCE_ATTRIBUTES is
// honoured for keys cfg does not set.
func (cfg ProviderConfig) Resource(ctx context.Context) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "earsense"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.SampleRate > 0 {
		attrs = append(attrs, attribute.Int(SampleRateKey, cfg.SampleRate))
	}
	if len(cfg.Detectors) > 0 {
		attrs = append(attrs, attribute.StringSlice(DetectorsKey, cfg.Detectors))
	}
	if cfg.StoreBackend != "" {
		attrs = append(attrs, attribute.String(StoreBackendKey, cfg.StoreBackend))
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}
	return res, nil
}

// InitProvider registers global meter and tracer providers sharing the
// resource of cfg. Metrics go to the Prometheus registry served by
// [MetricsHandler]. The returned function flushes and closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := cfg.Resource(ctx)
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// MetricsHandler serves the Prometheus registry fed by [InitProvider].
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
