package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/repoindex/internal/qdrant"
)

var qdrantTracer = otel.Tracer("repoindex.vectorstore.qdrant")

// QdrantStore implements Store on top of a qdrant.Client.
type QdrantStore struct {
	client qdrant.Client
}

// NewQdrantStore wraps an established client.
func NewQdrantStore(client qdrant.Client) (*QdrantStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client is required", ErrInvalidConfig)
	}
	return &QdrantStore{client: client}, nil
}

// CreateCollection creates a cosine collection of dims.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dims int) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dims <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := s.client.CreateCollection(ctx, name, uint64(dims)); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection deletes the collection if it exists.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	err := s.client.DeleteCollection(ctx, name)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.client.CollectionExists(ctx, name)
}

// Upsert writes points and waits for them to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("points", len(points)))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points, len(points[0].Vector)); err != nil {
		return err
	}

	qp := make([]*qdrant.Point, len(points))
	for i := range points {
		qp[i] = &qdrant.Point{ID: points[i].ID, Vector: points[i].Vector, Payload: points[i].Payload}
	}
	if err := s.client.Upsert(ctx, name, qp); err != nil {
		return translateError(name, err)
	}
	return nil
}

// Search returns up to k nearest points.
func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	hits, err := s.client.Search(ctx, name, vector, uint64(k))
	if err != nil {
		return nil, translateError(name, err)
	}
	out := make([]ScoredPoint, len(hits))
	for i, h := range hits {
		out[i] = ScoredPoint{ID: h.ID, Score: h.Score, Payload: h.Payload}
	}
	return out, nil
}

// Close closes the underlying client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := status.FromError(e); ok && st.Code() == codes.NotFound {
			return true
		}
	}
	return false
}

func translateError(name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return err
}

var _ Store = (*QdrantStore)(nil)
