package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	TracerName = "license-orchestrator"
	MeterName  = "license-orchestrator"
)

// LicenseMetrics holds all license-specific OpenTelemetry metrics
type LicenseMetrics struct {
	ValidationAttempts metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	Verdicts           metric.Int64Counter
	CacheHits          metric.Int64Counter
	SharedChecks       metric.Int64Counter

	AuthorityRequests metric.Int64Counter
	AuthorityLatency  metric.Float64Histogram

	ConsecutiveFailures metric.Int64Gauge
	RecordDeletions     metric.Int64Counter
	StoreErrors         metric.Int64Counter
}

// InitializeLicenseMetrics creates all license-specific metrics
func InitializeLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	m := &LicenseMetrics{}
	var err error

	m.ValidationAttempts, err = meter.Int64Counter(
		"license_validation_attempts_total",
		metric.WithDescription("Total number of license revalidations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation attempts counter: %w", err)
	}

	m.ValidationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License revalidation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	m.Verdicts, err = meter.Int64Counter(
		"license_verdicts_total",
		metric.WithDescription("License verdicts by verdict and reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verdicts counter: %w", err)
	}

	m.CacheHits, err = meter.Int64Counter(
		"license_cache_hits_total",
		metric.WithDescription("Checks answered from the cached record without contacting the authority"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.SharedChecks, err = meter.Int64Counter(
		"license_shared_checks_total",
		metric.WithDescription("Revalidation callers that joined an in-flight check"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared checks counter: %w", err)
	}

	m.AuthorityRequests, err = meter.Int64Counter(
		"license_authority_requests_total",
		metric.WithDescription("Requests sent to the licensing authority by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority requests counter: %w", err)
	}

	m.AuthorityLatency, err = meter.Float64Histogram(
		"license_authority_latency_seconds",
		metric.WithDescription("Licensing authority round trip latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority latency histogram: %w", err)
	}

	m.ConsecutiveFailures, err = meter.Int64Gauge(
		"license_consecutive_failures",
		metric.WithDescription("Consecutive ambiguous or failed checks on the current record"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consecutive failures gauge: %w", err)
	}

	m.RecordDeletions, err = meter.Int64Counter(
		"license_record_deletions_total",
		metric.WithDescription("License records discarded by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create record deletions counter: %w", err)
	}

	m.StoreErrors, err = meter.Int64Counter(
		"license_store_errors_total",
		metric.WithDescription("Persisted record store failures by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store errors counter: %w", err)
	}

	return m, nil
}

func (m *LicenseMetrics) recordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

func (m *LicenseMetrics) recordShared(ctx context.Context) {
	if m == nil {
		return
	}
	m.SharedChecks.Add(ctx, 1)
}

func (m *LicenseMetrics) recordAuthority(ctx context.Context, out RawOutcome) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", out.Kind.String()))
	m.AuthorityRequests.Add(ctx, 1, attrs)
	m.AuthorityLatency.Record(ctx, out.Latency.Seconds(), attrs)
}

func (m *LicenseMetrics) recordValidation(ctx context.Context, trigger string, duration time.Duration, out Outcome) {
	if m == nil {
		return
	}
	m.ValidationAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	m.ValidationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("verdict", out.Verdict.String()),
	))
}

func (m *LicenseMetrics) recordVerdict(ctx context.Context, out Outcome) {
	if m == nil {
		return
	}
	m.Verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", out.Verdict.String()),
		attribute.String("reason", string(out.Reason)),
	))
	m.ConsecutiveFailures.Record(ctx, int64(out.FailureCount))
}

func (m *LicenseMetrics) recordDeletion(ctx context.Context, reason Reason) {
	if m == nil {
		return
	}
	m.RecordDeletions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *LicenseMetrics) recordStoreError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.StoreErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
