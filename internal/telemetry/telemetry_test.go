package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/magika-go/internal/magika"
)

func manualProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return newProvider(true, tracenoop.NewTracerProvider().Tracer(""), mp.Meter(instrumentationName)), reader
}

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumByAttr(t *testing.T, agg metricdata.Aggregation, key string) map[string]int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", agg)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestRecordScan(t *testing.T) {
	p, reader := manualProvider(t)
	ctx := context.Background()

	p.RecordScan(ctx, magika.Prediction{Label: "pdf", Score: 0.9}, 100, 2*time.Millisecond, nil)
	p.RecordScan(ctx, magika.Prediction{Label: "pdf", Score: 0.8}, 50, time.Millisecond, nil)
	p.RecordScan(ctx, magika.Prediction{Label: "python", Score: 0.7}, 10, time.Millisecond, nil)
	p.RecordScan(ctx, magika.Prediction{}, 0, 0, fmt.Errorf("%w: x", magika.ErrSourceUnavailable))

	data := collect(t, reader)
	assert.Equal(t, map[string]int64{"pdf": 2, "python": 1}, sumByAttr(t, data["magika_scans_total"], "magika.label"))
	assert.Equal(t, map[string]int64{"source_unavailable": 1}, sumByAttr(t, data["magika_scan_errors_total"], "magika.error_kind"))

	bytes, ok := data["magika_bytes_scanned_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, bytes.DataPoints, 1)
	assert.Equal(t, int64(160), bytes.DataPoints[0].Value)
}

func TestInstrumentInferencer(t *testing.T) {
	p, reader := manualProvider(t)
	failing := errors.New("boom")
	calls := 0
	inf := p.InstrumentInferencer(magika.InferencerFunc(func(context.Context, []int32) ([]float32, error) {
		calls++
		if calls == 2 {
			return nil, failing
		}
		return []float32{1}, nil
	}))

	_, err := inf.Infer(context.Background(), []int32{1})
	require.NoError(t, err)
	_, err = inf.Infer(context.Background(), []int32{1})
	assert.ErrorIs(t, err, failing)

	hist, ok := collect(t, reader)["magika_inference_duration_ms"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	ctx, span := p.StartScan(context.Background(), map[string]interface{}{"magika.source": "a"})
	EndScan(span, magika.Prediction{Label: "txt"}, nil)
	p.RecordScan(ctx, magika.Prediction{Label: "txt"}, 1, time.Millisecond, nil)
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordScan(context.Background(), magika.Prediction{}, 0, 0, nil)
	nilProvider.Shutdown(context.Background())
	inner := magika.InferencerFunc(func(context.Context, []int32) ([]float32, error) { return nil, nil })
	assert.NotNil(t, nilProvider.InstrumentInferencer(inner))
}

func TestUnsupportedProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Protocol: "udp", Endpoint: "localhost:1"})
	var upe *UnsupportedProtocolError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "udp", upe.Protocol)
}
