package license

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordExpiry(t *testing.T) {
	var nilRec *Record
	assert.True(t, nilRec.Expired(testNow))
	assert.False(t, nilRec.Usable(testNow))

	r := activeRecord()
	assert.False(t, r.Expired(testNow))
	assert.True(t, r.Usable(testNow))
	assert.Equal(t, 30, r.DaysRemaining(testNow))

	r.ExpiresAt = testNow.Add(25 * time.Hour)
	assert.Equal(t, 2, r.DaysRemaining(testNow))

	r.ExpiresAt = time.Time{}
	assert.False(t, r.Expired(testNow.AddDate(50, 0, 0)))
	assert.Equal(t, -1, r.DaysRemaining(testNow))

	r.ExpiresAt = testNow.Add(-time.Second)
	assert.True(t, r.Expired(testNow))
	assert.Zero(t, r.DaysRemaining(testNow))
}

func TestRecordCloneIsIndependent(t *testing.T) {
	r := activeRecord()
	c := r.Clone()
	c.ConsecutiveFailureCount = 9
	assert.Zero(t, r.ConsecutiveFailureCount)
}

func TestKeyMasking(t *testing.T) {
	assert.Equal(t, "ABCDEFGH", KeyPrefix("ABCDEFGH-1234"))
	assert.Equal(t, "ABC", KeyPrefix("ABC"))
	assert.Equal(t, "ABCDEFGH****", MaskLicenseKey("ABCDEFGH-1234"))
	assert.Equal(t, "N/A", MaskLicenseKey(""))
	assert.Equal(t, "KEY", NormalizeKey("  KEY \n"))
}

func TestVerdictJSON(t *testing.T) {
	data, err := json.Marshal(Outcome{Verdict: VerdictDegraded, Reason: ReasonTransportFailure, Cached: true})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "degraded", body["verdict"])
	assert.Equal(t, "transport_failure", body["reason"])
	assert.Equal(t, true, body["cached"])
	assert.True(t, VerdictDegraded.Allows())
	assert.False(t, VerdictInvalid.Allows())
}

func TestLicenseMetricsRecordVerdicts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := InitializeLicenseMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	m := NewManager(newFakeAuthority(affirmedActive()), &memoryStore{}, ManagerConfig{
		Metrics: metrics,
		Now:     func() time.Time { return testNow },
	})
	m.Revalidate(context.Background(), "KEY1")
	m.CheckCached(context.Background())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["license_validation_attempts_total"])
	assert.True(t, names["license_verdicts_total"])
}
