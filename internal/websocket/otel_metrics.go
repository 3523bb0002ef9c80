package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "switchboard/websocket"

// HubMetrics records hub activity through the global OpenTelemetry meter
// provider. With no provider installed every instrument is a no-op.
type HubMetrics struct {
	joins       metric.Int64Counter
	active      metric.Int64UpDownCounter
	duration    metric.Float64Histogram
	broadcasts  metric.Int64Counter
	deliveries  metric.Int64Counter
	dropped     metric.Int64Counter
	clientCount metric.Int64Gauge
}

// NewHubMetrics creates the hub instruments
func NewHubMetrics() (*HubMetrics, error) {
	meter := otel.Meter(meterName)
	m := &HubMetrics{}
	var err error

	if m.joins, err = meter.Int64Counter("websocket_hub_joins_total",
		metric.WithDescription("Total number of clients that joined a hub")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("websocket_hub_clients_active",
		metric.WithDescription("Number of clients currently joined")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("websocket_hub_membership_duration_seconds",
		metric.WithDescription("Time clients stayed joined"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.broadcasts, err = meter.Int64Counter("websocket_hub_broadcasts_total",
		metric.WithDescription("Total number of broadcast operations")); err != nil {
		return nil, err
	}
	if m.deliveries, err = meter.Int64Counter("websocket_hub_deliveries_total",
		metric.WithDescription("Messages queued to clients by broadcasts")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("websocket_hub_dropped_clients_total",
		metric.WithDescription("Clients disconnected because their queue was full")); err != nil {
		return nil, err
	}
	if m.clientCount, err = meter.Int64Gauge("websocket_hub_client_count",
		metric.WithDescription("Current number of joined clients")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordJoin records a client joining
func (m *HubMetrics) RecordJoin(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.joins.Add(ctx, 1)
	m.active.Add(ctx, 1)
	m.clientCount.Record(ctx, int64(count))
}

// RecordLeave records a client leaving after d, for reason "left", "dropped" or "stopped"
func (m *HubMetrics) RecordLeave(ctx context.Context, d time.Duration, reason string, count int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.active.Add(ctx, -1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.clientCount.Record(ctx, int64(count))
	if reason == "dropped" {
		m.dropped.Add(ctx, 1)
	}
}

// RecordBroadcast records one fan-out
func (m *HubMetrics) RecordBroadcast(ctx context.Context, delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcasts.Add(ctx, 1)
	m.deliveries.Add(ctx, int64(delivered))
	if failed > 0 {
		m.deliveries.Add(ctx, int64(failed), metric.WithAttributes(attribute.Bool("failed", true)))
	}
}
