package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/events"
	"github.com/fyrsmithlabs/repoindex/internal/ignore"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/repository"
	"github.com/fyrsmithlabs/repoindex/internal/secrets"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/repoindex/internal/indexer"

// ErrInvalidInput wraps every validation failure of a request. It is the
// walker's sentinel, so a bad root and a bad query classify the same way.
var ErrInvalidInput = repository.ErrInvalidInput

// ErrRepositoryNotFound is returned when a repository has no collection.
var ErrRepositoryNotFound = vectorstore.ErrCollectionNotFound

// Embedder produces vectors for records and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config tunes a Service.
type Config struct {
	// BatchSize is the number of records embedded and upserted together.
	BatchSize int
	// Workers bounds concurrent file reads during the walk.
	Workers int
	// EmbedConcurrency bounds batches in flight.
	EmbedConcurrency int
	DefaultTopK      int
	MaxTopK          int
	// ExcludePatterns and UseIgnoreFiles apply to every run in addition
	// to what the request asks for.
	ExcludePatterns []string
	UseIgnoreFiles  bool
}

// DefaultConfig returns the defaults used for zero fields.
func DefaultConfig() Config {
	return Config{BatchSize: 64, EmbedConcurrency: 2, DefaultTopK: 20, MaxTopK: 100}
}

// ConfigFromSettings maps the index section of the configuration.
func ConfigFromSettings(s config.IndexConfig) Config {
	cfg := DefaultConfig()
	if s.BatchSize > 0 {
		cfg.BatchSize = s.BatchSize
	}
	cfg.Workers = s.Workers
	if s.DefaultTopK > 0 {
		cfg.DefaultTopK = s.DefaultTopK
	}
	if s.MaxTopK > 0 {
		cfg.MaxTopK = s.MaxTopK
	}
	cfg.ExcludePatterns = s.ExcludePatterns
	cfg.UseIgnoreFiles = s.UseIgnoreFiles
	return cfg
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = d.EmbedConcurrency
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK < c.DefaultTopK {
		c.MaxTopK = max(d.MaxTopK, c.DefaultTopK)
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScrubber redacts secrets from stored and embedded text.
func WithScrubber(sc secrets.Scrubber) Option {
	return func(s *Service) {
		if sc != nil {
			s.scrubber = sc
		}
	}
}

// WithEvents publishes a started and a completed or failed event for
// every indexing run.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service indexes and searches repositories. Safe for concurrent use;
// concurrent runs against the same repository are serialized.
type Service struct {
	cfg      Config
	store    vectorstore.Store
	embedder Embedder
	scrubber secrets.Scrubber
	events   events.Publisher
	metrics  *Metrics
	logger   *logging.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	locks map[string]*repoLock
}

// repoLock is a per-repository writer lock. refs counts the callers holding
// or waiting for it; the entry is dropped when it reaches zero.
type repoLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a Service.
func NewService(cfg Config, store vectorstore.Store, embedder Embedder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	cfg.applyDefaults()

	s := &Service{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		scrubber: secrets.Noop{},
		events:   events.Noop{},
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		locks:    make(map[string]*repoLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RepositoryExists reports whether the repository has a collection.
func (s *Service) RepositoryExists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	return s.store.CollectionExists(ctx, name)
}

// CreateRepository (re)creates an empty collection for name, dropping any
// previous points.
func (s *Service) CreateRepository(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "indexer.CreateRepository",
		trace.WithAttributes(attribute.String("repository", name)))
	defer span.End()

	if err := validateName(name); err != nil {
		return err
	}
	unlock := s.lock(name)
	defer unlock()

	if err := s.store.DeleteCollection(ctx, name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if err := s.store.CreateCollection(ctx, name, s.embedder.Dimension()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info(ctx, "repository created",
		zap.String("repository", name),
		zap.Int("dimension", s.embedder.Dimension()))
	return nil
}

// IndexRepository walks req.Root and stores one point per record in the
// repository's collection, creating it when missing. Points from earlier
// runs are overwritten by id; records that disappeared are not removed.
func (s *Service) IndexRepository(ctx context.Context, name string, req IndexRequest) (result *IndexResult, err error) {
	ctx, span := s.tracer.Start(ctx, "indexer.IndexRepository",
		trace.WithAttributes(
			attribute.String("repository", name),
			attribute.String("root", req.Root),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.IndexRuns.WithLabelValues(status(err)).Inc()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validateName(name); err != nil {
		return nil, err
	}
	if req.Root == "" {
		return nil, fmt.Errorf("%w: root path is required", ErrInvalidInput)
	}

	unlock := s.lock(name)
	defer unlock()

	runID := uuid.NewString()
	s.publish(ctx, events.Event{RunID: runID, Repository: name, Status: events.StatusStarted, Root: req.Root})
	defer func() {
		e := events.Event{
			RunID:      runID,
			Repository: name,
			Status:     events.StatusCompleted,
			Root:       req.Root,
			Duration:   time.Since(start).String(),
		}
		if err != nil {
			e.Status = events.StatusFailed
			e.Error = err.Error()
		} else {
			e.Root = result.Root
			e.Branch = result.Branch
			e.Points = result.Points
		}
		s.publish(ctx, e)
	}()

	walkerOpts := []repository.Option{
		repository.WithLogger(s.logger.Named("walker")),
		repository.WithWorkers(s.cfg.Workers),
	}
	patterns := append(append([]string(nil), s.cfg.ExcludePatterns...), req.ExcludePatterns...)
	useIgnoreFiles := req.UseIgnoreFiles || s.cfg.UseIgnoreFiles
	if len(patterns) > 0 || useIgnoreFiles {
		m, err := ignore.New(ignore.Options{
			Root:           req.Root,
			Patterns:       patterns,
			UseIgnoreFiles: useIgnoreFiles,
			UseProjectFile: useIgnoreFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		walkerOpts = append(walkerOpts, repository.WithMatcher(m))
	}

	tree, err := repository.NewWalker(walkerOpts...).BuildMetadataTree(ctx, req.Root)
	if err != nil {
		return nil, err
	}

	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	branch := DetectBranch(tree.Root)
	n, err := s.writeRecords(ctx, name, branch, tree.Records())
	if err != nil {
		return nil, err
	}
	s.metrics.observeTree(tree)

	result = &IndexResult{
		Repository:    name,
		Root:          tree.Root,
		Branch:        branch,
		Points:        tree.Len(),
		Folders:       tree.Stats.Folders,
		Files:         tree.Stats.Files,
		Lines:         tree.Stats.Lines,
		BinarySkipped: tree.Stats.BinarySkipped,
		Unreadable:    tree.Stats.Unreadable,
		Excluded:      tree.Stats.Excluded,
		Redacted:      n,
		Duration:      time.Since(start),
		IndexedAt:     time.Now().UTC(),
	}
	if s.metrics != nil {
		s.metrics.IndexDuration.Observe(result.Duration.Seconds())
	}

	span.SetAttributes(attribute.Int("points", result.Points))
	s.logger.Info(ctx, "repository indexed",
		zap.String("repository", name),
		zap.String("root", result.Root),
		zap.String("branch", branch),
		zap.Int("points", result.Points),
		zap.Int("binary_skipped", result.BinarySkipped),
		zap.Int("unreadable", result.Unreadable),
		zap.Int("redacted", result.Redacted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "publishing index event failed",
			zap.String("repository", e.Repository),
			zap.String("status", e.Status),
			zap.Error(err))
	}
}

func (s *Service) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := s.store.CreateCollection(ctx, name, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Debug(ctx, "collection created for index run", zap.String("repository", name))
	return nil
}

// writeRecords embeds and upserts records in batches and returns how many
// records had content redacted.
func (s *Service) writeRecords(ctx context.Context, name, branch string, records []repository.Record) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)

	var (
		mu       sync.Mutex
		redacted int
	)
	for lo := 0; lo < len(records); lo += s.cfg.BatchSize {
		batch := records[lo:min(lo+s.cfg.BatchSize, len(records))]
		g.Go(func() error {
			n, err := s.writeBatch(gctx, name, branch, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			redacted += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.Redacted.Add(float64(redacted))
	}
	return redacted, nil
}

func (s *Service) writeBatch(ctx context.Context, name, branch string, batch []repository.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	texts := make([]string, len(batch))
	points := make([]vectorstore.Point, len(batch))
	redacted := 0
	for i, rec := range batch {
		clean, rules := s.scrub(rec)
		extra := map[string]interface{}{keyRepository: name}
		if branch != "" {
			extra[keyBranch] = branch
		}
		if len(rules) > 0 {
			redacted++
			ids := make([]interface{}, len(rules))
			for j, id := range rules {
				ids[j] = id
			}
			extra[keyRedactedRules] = ids
			s.logger.Warn(ctx, "secrets redacted from record",
				zap.String("repository", name),
				zap.String("key", rec.Key()),
				zap.Strings("rules", rules))
		}
		texts[i] = clean.EmbeddingText()
		points[i] = vectorstore.Point{
			ID:      PointID(rec),
			Payload: EncodePayload(clean, extra),
		}
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d records: %w", len(texts), err)
	}
	if len(vectors) != len(points) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(points))
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}

	if err := s.store.Upsert(ctx, name, points); err != nil {
		return 0, fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return redacted, nil
}

// scrub returns rec with secrets redacted from its text fields and the ids
// of the rules that fired.
func (s *Service) scrub(rec repository.Record) (repository.Record, []string) {
	if !s.scrubber.Enabled() {
		return rec, nil
	}

	var findings []secrets.Finding
	clean := func(text string) string {
		res := s.scrubber.Scrub(text)
		findings = append(findings, res.Findings...)
		return res.Scrubbed
	}

	switch r := rec.(type) {
	case repository.FileRecord:
		r.Content = clean(r.Content)
		rec = r
	case repository.LineRecord:
		r.Content = clean(r.Content)
		if r.Previous != nil {
			prev := *r.Previous
			prev.Content = clean(prev.Content)
			r.Previous = &prev
		}
		if r.Next != nil {
			next := *r.Next
			next.Content = clean(next.Content)
			r.Next = &next
		}
		rec = r
	}
	return rec, secrets.Result{Findings: findings}.RuleIDs()
}

// Search embeds query and returns up to topK records from the
// repository, most similar first. topK 0 selects the default; values
// above the maximum are clamped.
func (s *Service) Search(ctx context.Context, name, query string, topK int) (results []SearchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "indexer.Search",
		trace.WithAttributes(
			attribute.String("repository", name),
			attribute.Int("top_k", topK),
		))
	defer span.End()
	defer func() {
		if s.metrics != nil {
			s.metrics.Searches.WithLabelValues(status(err)).Inc()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validateName(name); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	switch {
	case topK < 0:
		return nil, fmt.Errorf("%w: top_k must not be negative, got %d", ErrInvalidInput, topK)
	case topK == 0:
		topK = s.cfg.DefaultTopK
	case topK > s.cfg.MaxTopK:
		topK = s.cfg.MaxTopK
	}

	exists, err := s.store.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, name)
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(ctx, name, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", name, err)
	}

	results = make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		rec, extra, err := DecodePayload(hit.Payload)
		if err != nil {
			s.logger.Warn(ctx, "skipping search hit with invalid payload",
				zap.String("repository", name),
				zap.String("id", hit.ID),
				zap.Error(err))
			continue
		}
		results = append(results, newSearchResult(hit.Score, rec, extra))
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// lock serializes writers per repository and returns the unlock func.
func (s *Service) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &repoLock{}
		s.locks[name] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, name)
		}
	}
}

func validateName(name string) error {
	if err := vectorstore.ValidateCollectionName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}
