package vectorstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	inner, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	s := NewInstrumentedStore(inner, reg)

	require.NoError(t, s.CreateCollection(ctx, "demo", 3))
	require.NoError(t, s.Upsert(ctx, "demo", samplePoints()))
	_, err = s.Search(ctx, "missing", []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrCollectionNotFound)

	assert.Equal(t, float64(3), testutil.ToFloat64(s.points))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.errors.WithLabelValues("search")))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.errors.WithLabelValues("upsert")))
	assert.Equal(t, 3, testutil.CollectAndCount(s.duration))
}
