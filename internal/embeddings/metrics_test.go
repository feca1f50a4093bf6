package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	model := "sentence-transformers/all-MiniLM-L6-v2"
	m.RecordGeneration(ctx, model, "embed_documents", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, model, "embed_query", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, model, "embed_documents", 25*time.Millisecond, 5, errors.New("generation failed"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]uint64{}
	var errorsTotal int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					counts[md.Name] += dp.Count
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					counts[md.Name] += dp.Count
				}
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					errorsTotal += dp.Value
				}
			}
		}
	}

	assert.Equal(t, uint64(3), counts["repoindex.embedding.generation_duration_seconds"])
	assert.Equal(t, uint64(3), counts["repoindex.embedding.batch_size"])
	assert.Equal(t, int64(1), errorsTotal)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", "embed_query", time.Second, 1, nil)
	})
}
