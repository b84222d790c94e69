package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/config"
)

const (
	ServiceName = "wabot"
	MeterName   = "projeto-bot-whatsapp"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName       string
	ServiceVersion    string
	Environment       string
	EnablePrometheus  bool
	EnableStdoutTrace bool
	SampleRatio       float64
}

// NewOTelConfig maps the telemetry section of the app config.
func NewOTelConfig(cfg config.TelemetryConfig, version string) *OTelConfig {
	name := cfg.ServiceName
	if name == "" {
		name = ServiceName
	}
	return &OTelConfig{
		ServiceName:       name,
		ServiceVersion:    version,
		Environment:       cfg.Environment,
		EnablePrometheus:  cfg.EnablePrometheus,
		EnableStdoutTrace: cfg.EnableStdoutTrace,
		SampleRatio:       1.0,
	}
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// PrometheusHTTP serves /metrics; nil when Prometheus export is off.
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up tracing and metrics and installs them globally.
// Spans are always recorded so trace IDs reach the logs; they are printed
// only when stdout export is enabled.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", GenerateTraceID()),
	)

	providers := &OTelProviders{Logger: logger}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	}
	if cfg.EnableStdoutTrace {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.EnablePrometheus {
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(exporter))
		providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetMeterProvider(mp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("prometheus", cfg.EnablePrometheus),
		slog.Bool("stdout_trace", cfg.EnableStdoutTrace),
	)
	return providers, nil
}

// Shutdown flushes and stops both providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return firstErr
}

// AppMetrics holds the HTTP, messaging and realtime instruments. A nil
// *AppMetrics records nothing.
type AppMetrics struct {
	HTTPRequests     metric.Int64Counter
	HTTPDuration     metric.Float64Histogram
	HTTPActive       metric.Int64UpDownCounter
	MessagesSent     metric.Int64Counter
	BulkJobs         metric.Int64Counter
	BulkDuration     metric.Float64Histogram
	WebSocketClients metric.Int64UpDownCounter
}

// CreateAppMetrics registers the application instruments on meter.
func CreateAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	var err error

	if m.HTTPRequests, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.HTTPActive, err = meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests")); err != nil {
		return nil, err
	}
	if m.MessagesSent, err = meter.Int64Counter("messages_sent_total",
		metric.WithDescription("WhatsApp messages attempted, by kind and result")); err != nil {
		return nil, err
	}
	if m.BulkJobs, err = meter.Int64Counter("bulk_jobs_total",
		metric.WithDescription("Bulk send jobs, by outcome")); err != nil {
		return nil, err
	}
	if m.BulkDuration, err = meter.Float64Histogram("bulk_job_duration_seconds",
		metric.WithDescription("Bulk send job duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.WebSocketClients, err = meter.Int64UpDownCounter("websocket_clients",
		metric.WithDescription("Connected realtime clients")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records one finished request.
func (m *AppMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, attrs)
	m.HTTPDuration.Record(ctx, d.Seconds(), attrs)
}

// HTTPActiveDelta adjusts the in-flight request gauge.
func (m *AppMetrics) HTTPActiveDelta(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.HTTPActive.Add(ctx, delta)
}

// RecordMessage records one send attempt of kind "direct" or "group".
func (m *AppMetrics) RecordMessage(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.MessagesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

// RecordBulkJob records a finished bulk job.
func (m *AppMetrics) RecordBulkJob(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.BulkJobs.Add(ctx, 1, attrs)
	m.BulkDuration.Record(ctx, d.Seconds(), attrs)
}

// WebSocketClientDelta adjusts the connected client gauge.
func (m *AppMetrics) WebSocketClientDelta(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.WebSocketClients.Add(ctx, delta)
}

// TraceIDFromContext returns the OpenTelemetry trace ID of the active span,
// or "".
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records err on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
