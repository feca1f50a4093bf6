// Package qdrant wraps the official Qdrant gRPC client with retries and
// plain Go payload values.
package qdrant

import (
	"context"
	"errors"
)

// ErrInvalidPayload is returned when a payload value has no Qdrant encoding.
var ErrInvalidPayload = errors.New("invalid payload value")

// Client is the subset of Qdrant operations the vector store needs.
type Client interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]string, error)

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error)
	Get(ctx context.Context, collection string, ids []string) ([]*Point, error)
	Delete(ctx context.Context, collection string, ids []string) error

	Health(ctx context.Context) error
	Close() error
}

// Point is a vector with a UUID id and a JSON-like payload. Payload values
// may be strings, numbers, bools, nil, maps and slices of those.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}
