package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("repoindex.vectorstore.chromem")

// payloadKey is the chromem metadata key holding the JSON-encoded payload.
const payloadKey = "payload"

// ChromemConfig holds configuration for the embedded store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps data in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool
}

// ChromemStore implements Store with chromem-go.
//
// Vectors are supplied by the caller, so collections are created without an
// embedding function of their own. chromem only supports cosine similarity.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// dims remembers the vector size per collection. Collections loaded from
	// disk learn it from their first upsert.
	dims sync.Map
}

// NewChromemStore opens (or creates) the store at cfg.Path.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return &ChromemStore{db: db, config: cfg, logger: logger}, nil
}

// noEmbedding rejects text queries; every document carries its own vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: chromem collections are queried by vector only", ErrInvalidConfig)
}

// CreateCollection creates an empty collection, replacing nothing.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, dims int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dims <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if s.db.GetCollection(name, noEmbedding) != nil {
		return fmt.Errorf("collection %q already exists", name)
	}

	if _, err := s.db.CreateCollection(name, map[string]string{"dimension": fmt.Sprint(dims)}, noEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.dims.Store(name, dims)
	s.logger.Debug("collection created", zap.String("collection", name), zap.Int("dimension", dims))
	return nil
}

// DeleteCollection removes the collection and its persisted documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.dims.Delete(name)
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.db.GetCollection(name, noEmbedding) != nil, nil
}

// Upsert adds points; existing ids are overwritten.
func (s *ChromemStore) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("points", len(points)))

	if len(points) == 0 {
		return nil
	}
	col, err := s.collection(name)
	if err != nil {
		return err
	}

	dims, _ := s.dims.LoadOrStore(name, len(points[0].Vector))
	if err := validatePoints(points, dims.(int)); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", p.ID, err)
		}
		docs[i] = chromem.Document{
			ID:        p.ID,
			Embedding: p.Vector,
			Metadata:  map[string]string{payloadKey: string(raw)},
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return fmt.Errorf("adding documents to %s: %w", name, err)
	}
	return nil
}

// Search returns up to k nearest points. k is clamped to the collection size.
func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	col, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if dims, ok := s.dims.Load(name); ok && dims.(int) != len(vector) {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d", ErrDimensionMismatch, len(vector), dims.(int))
	}

	k = min(k, col.Count())
	if k == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}

	out := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		payload, err := decodePayload(r.Metadata[payloadKey])
		if err != nil {
			s.logger.Warn("skipping point with undecodable payload",
				zap.String("collection", name), zap.String("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, ScoredPoint{ID: r.ID, Score: r.Similarity, Payload: payload})
	}
	return out, nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

// decodePayload restores a payload with integers as int64, matching what
// the Qdrant backend returns.
func decodePayload(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return normalizeNumbers(payload).(map[string]interface{}), nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}

var _ Store = (*ChromemStore)(nil)
