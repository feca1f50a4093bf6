package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "6ba7b810-9dad-51d1-80b4-00c04fd430c1"
	idB = "6ba7b810-9dad-51d1-80b4-00c04fd430c2"
	idC = "6ba7b810-9dad-51d1-80b4-00c04fd430c3"
)

func samplePoints() []Point {
	return []Point{
		{ID: idA, Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"kind": "folder", "path": "/repo", "entry_count": 2, "files": []string{"/repo/a.go"}}},
		{ID: idB, Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"kind": "file", "path": "/repo/a.go", "score": 0.25}},
		{ID: idC, Vector: []float32{0.9, 0.1, 0}, Payload: map[string]interface{}{"kind": "line", "path": "/repo/a.go", "line_number": 1}},
	}
}

func TestChromemStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	defer s.Close()

	exists, err := s.CollectionExists(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateCollection(ctx, "demo", 3))
	assert.Error(t, s.CreateCollection(ctx, "demo", 3), "creating twice must fail")

	exists, err = s.CollectionExists(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteCollection(ctx, "demo"))
	require.NoError(t, s.DeleteCollection(ctx, "demo"), "deleting a missing collection is not an error")

	exists, err = s.CollectionExists(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "demo", 3))

	hits, err := s.Search(ctx, "demo", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty collection yields no hits")

	require.NoError(t, s.Upsert(ctx, "demo", samplePoints()))

	hits, err = s.Search(ctx, "demo", []float32{1, 0, 0}, 20)
	require.NoError(t, err)
	require.Len(t, hits, 3, "k is clamped to the collection size")
	assert.Equal(t, idA, hits[0].ID)
	assert.Equal(t, idC, hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[2].Score)

	folder := hits[0].Payload
	assert.Equal(t, "folder", folder["kind"])
	assert.Equal(t, int64(2), folder["entry_count"])
	assert.Equal(t, []interface{}{"/repo/a.go"}, folder["files"])
	assert.Equal(t, 0.25, hits[2].Payload["score"])

	hits, err = s.Search(ctx, "demo", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// Upserting the same id replaces the point.
	replaced := []Point{{ID: idA, Vector: []float32{0, 0, 1}, Payload: map[string]interface{}{"kind": "folder"}}}
	require.NoError(t, s.Upsert(ctx, "demo", replaced))
	hits, err = s.Search(ctx, "demo", []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, idA, hits[0].ID)
}

func TestChromemStore_Errors(t *testing.T) {
	ctx := context.Background()
	s, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)

	_, err = s.Search(ctx, "missing", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	err = s.Upsert(ctx, "missing", samplePoints())
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	assert.ErrorIs(t, s.CreateCollection(ctx, "bad name", 3), ErrInvalidCollectionName)
	assert.ErrorIs(t, s.CreateCollection(ctx, "zero", 0), ErrInvalidConfig)

	require.NoError(t, s.CreateCollection(ctx, "demo", 3))
	err = s.Upsert(ctx, "demo", []Point{{ID: idA, Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.Search(ctx, "demo", []float32{1, 2}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewChromemStore(ChromemConfig{Path: dir, Compress: true}, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "demo", 3))
	require.NoError(t, s.Upsert(ctx, "demo", samplePoints()))
	require.NoError(t, s.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir, Compress: true}, nil)
	require.NoError(t, err)

	exists, err := reopened.CollectionExists(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, exists)

	hits, err := reopened.Search(ctx, "demo", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, idB, hits[0].ID)
	assert.Equal(t, "/repo/a.go", hits[0].Payload["path"])
}

func TestDecodePayload(t *testing.T) {
	p, err := decodePayload(`{"n":3,"f":1.5,"nested":{"m":[1,2.5]}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p["n"])
	assert.Equal(t, 1.5, p["f"])
	assert.Equal(t, []interface{}{int64(1), 2.5}, p["nested"].(map[string]interface{})["m"])

	p, err = decodePayload("")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = decodePayload("{")
	assert.Error(t, err)
}
