// Package vectorstore holds repository vectors in named collections.
//
// Two backends implement Store: ChromemStore (embedded chromem-go, the
// default) and QdrantStore (a remote Qdrant over gRPC). Payload values
// round-trip as string, int64, float64, bool, nil, map[string]interface{}
// and []interface{} regardless of the backend.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Store is the vector index used by the indexer.
type Store interface {
	// CreateCollection creates an empty collection for vectors of dims.
	CreateCollection(ctx context.Context, name string, dims int) error
	// DeleteCollection removes a collection. Deleting a missing collection
	// is not an error.
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, name string, points []Point) error
	// Search returns up to k points ordered by descending similarity.
	Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error)
	Close() error
}

// Point is a stored vector. ID must be a UUID string.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit with cosine similarity.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateCollectionName checks name against ^[A-Za-z0-9_-]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[A-Za-z0-9_-]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validatePoints(points []Point, dims int) error {
	for _, p := range points {
		if p.ID == "" {
			return errors.New("point id is empty")
		}
		if dims > 0 && len(p.Vector) != dims {
			return fmt.Errorf("%w: point %s has %d dimensions, collection expects %d", ErrDimensionMismatch, p.ID, len(p.Vector), dims)
		}
	}
	return nil
}
