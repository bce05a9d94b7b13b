package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/plaenen/iamcore/pkg/observability"
)

// collect drains the manual reader and returns all metrics by name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestTelemetry(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordBatchFeedsLagAndCounters", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		tel, err := observability.Init(ctx, observability.Config{
			ServiceName:  "iamcore-test",
			MetricReader: reader,
		})
		require.NoError(t, err)
		t.Cleanup(func() { tel.Shutdown(ctx) })

		tel.Metrics.RecordBatch(ctx, "orgs", 7, 3*time.Second)
		tel.Metrics.RecordBatch(ctx, "orgs", 3, time.Second)

		metrics := collect(t, reader)

		events, ok := metrics["iamcore.projection.events"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, events.DataPoints, 1)
		assert.Equal(t, int64(10), events.DataPoints[0].Value)

		batches, ok := metrics["iamcore.projection.batches"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.Equal(t, int64(2), batches.DataPoints[0].Value)

		lag, ok := metrics["iamcore.projection.lag"].Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		assert.Equal(t, 1.0, lag.DataPoints[0].Value)
	})

	t.Run("RecordPushCountsEvents", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		tel, err := observability.Init(ctx, observability.Config{
			ServiceName:  "iamcore-test",
			MetricReader: reader,
		})
		require.NoError(t, err)
		t.Cleanup(func() { tel.Shutdown(ctx) })

		tel.Metrics.RecordPush(ctx, 4, 20*time.Millisecond)

		metrics := collect(t, reader)
		pushed, ok := metrics["iamcore.events.pushed"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.Equal(t, int64(4), pushed.DataPoints[0].Value)

		latency, ok := metrics["iamcore.push.latency"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		assert.Equal(t, uint64(1), latency.DataPoints[0].Count)
	})

	t.Run("CommandErrorsOnlyCountFailures", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		tel, err := observability.Init(ctx, observability.Config{
			ServiceName:  "iamcore-test",
			MetricReader: reader,
		})
		require.NoError(t, err)
		t.Cleanup(func() { tel.Shutdown(ctx) })

		tel.Metrics.RecordCommand(ctx, "org.add", time.Millisecond, nil)
		tel.Metrics.RecordCommand(ctx, "org.add", time.Millisecond, context.DeadlineExceeded)

		metrics := collect(t, reader)
		errs, ok := metrics["iamcore.command.errors"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.Equal(t, int64(1), errs.DataPoints[0].Value)
	})
}
