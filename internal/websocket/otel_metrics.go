package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the realtime channel instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	connectionsTotal   metric.Int64Counter
	connectionDuration metric.Float64Histogram
	messagesTotal      metric.Int64Counter
	messageBytes       metric.Int64Counter
	droppedMessages    metric.Int64Counter
}

// NewMetrics registers the channel instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.connectionsTotal, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil, err
	}
	if m.connectionDuration, err = meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.messagesTotal, err = meter.Int64Counter("websocket_messages_total",
		metric.WithDescription("WebSocket frames by direction and type")); err != nil {
		return nil, err
	}
	if m.messageBytes, err = meter.Int64Counter("websocket_message_bytes_total",
		metric.WithDescription("WebSocket payload bytes by direction"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_dropped_messages_total",
		metric.WithDescription("Frames dropped because a client fell behind")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordConnection(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsTotal.Add(ctx, 1)
}

func (m *Metrics) recordDisconnection(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.connectionDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) recordMessage(ctx context.Context, direction, messageType string, size int) {
	if m == nil {
		return
	}
	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("type", messageType),
	))
	m.messageBytes.Add(ctx, int64(size), metric.WithAttributes(attribute.String("direction", direction)))
}

func (m *Metrics) recordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
