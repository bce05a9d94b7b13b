// Package observability wires OpenTelemetry metrics for the core: the push
// path, the command layer, and the projection workers.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config configures the telemetry stack.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// MetricReader is the pluggable export side (Prometheus, OTLP, stdout).
	// Nil disables export; instruments still work but record into nothing.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry owns the meter provider and the core's instruments.
type Telemetry struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics
	Logger        *slog.Logger
}

// Init builds the meter provider and all instruments. A nil reader yields a
// provider without exporters, so recording stays a cheap no-op.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.MetricReader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	metrics, err := NewMetrics(provider.Meter("iamcore"))
	if err != nil {
		return nil, err
	}

	if cfg.MetricReader == nil {
		cfg.Logger.Info("metric export disabled (no reader configured)")
	} else {
		cfg.Logger.Info("metrics initialized", "service", cfg.ServiceName)
	}

	return &Telemetry{
		MeterProvider: provider,
		Metrics:       metrics,
		Logger:        cfg.Logger,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.MeterProvider.Shutdown(ctx)
}
