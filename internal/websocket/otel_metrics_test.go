package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.recordConnection(ctx)
	m.recordMessage(ctx, "out", "bulk-progress", 120)
	m.recordMessage(ctx, "in", "heartbeat", 20)
	m.recordDropped(ctx, "buffer_full")
	m.recordDisconnection(ctx, 3*time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	for _, want := range []string{
		"websocket_connections_total",
		"websocket_connection_duration_seconds",
		"websocket_messages_total",
		"websocket_message_bytes_total",
		"websocket_dropped_messages_total",
	} {
		assert.True(t, names[want], want)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.recordConnection(ctx)
		m.recordMessage(ctx, "out", "qr", 10)
		m.recordDropped(ctx, "buffer_full")
		m.recordDisconnection(ctx, time.Second)
	})
}
