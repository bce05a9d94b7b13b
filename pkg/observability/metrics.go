package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments of the core: the command layer, the
// event store push path, and the projection workers.
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandErrors   metric.Int64Counter

	// Push metrics
	EventsPushed metric.Int64Counter
	PushLatency  metric.Float64Histogram

	// Projection metrics
	ProjectionLag     metric.Float64Gauge
	ProjectionBatches metric.Int64Counter
	ProjectionEvents  metric.Int64Counter
	ProjectionErrors  metric.Int64Counter
}

// NewMetrics creates all metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"iamcore.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"iamcore.command.errors",
		metric.WithDescription("Total failed commands"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.EventsPushed, err = meter.Int64Counter(
		"iamcore.events.pushed",
		metric.WithDescription("Total events appended to the event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.pushed: %w", err)
	}

	m.PushLatency, err = meter.Float64Histogram(
		"iamcore.push.latency",
		metric.WithDescription("Event store push latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating push.latency: %w", err)
	}

	m.ProjectionLag, err = meter.Float64Gauge(
		"iamcore.projection.lag",
		metric.WithDescription("Age of the newest event a projection has processed, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.lag: %w", err)
	}

	m.ProjectionBatches, err = meter.Int64Counter(
		"iamcore.projection.batches",
		metric.WithDescription("Total projection batches applied"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.batches: %w", err)
	}

	m.ProjectionEvents, err = meter.Int64Counter(
		"iamcore.projection.events",
		metric.WithDescription("Total events applied by projections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.events: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"iamcore.projection.errors",
		metric.WithDescription("Total projection processing errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating projection.errors: %w", err)
	}

	return m, nil
}

// RecordCommand records one command execution.
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("command_type", commandType))
	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.CommandErrors.Add(ctx, 1, attrs)
	}
}

// RecordPush records one event store push.
func (m *Metrics) RecordPush(ctx context.Context, events int, duration time.Duration) {
	m.EventsPushed.Add(ctx, int64(events))
	m.PushLatency.Record(ctx, duration.Seconds())
}

// RecordBatch records one applied projection batch. lag is the age of the
// newest event in the batch at the time it was applied. Satisfies the
// projection package's Metrics interface.
func (m *Metrics) RecordBatch(ctx context.Context, projection string, events int, lag time.Duration) {
	attrs := metric.WithAttributes(attribute.String("projection", projection))
	m.ProjectionBatches.Add(ctx, 1, attrs)
	m.ProjectionEvents.Add(ctx, int64(events), attrs)
	m.ProjectionLag.Record(ctx, lag.Seconds(), attrs)
}

// RecordProjectionError records one projection failure.
func (m *Metrics) RecordProjectionError(ctx context.Context, projection string) {
	m.ProjectionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", projection)))
}
