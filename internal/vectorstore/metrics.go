package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InstrumentedStore records Prometheus metrics around another Store.
type InstrumentedStore struct {
	next     Store
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	points   prometheus.Counter
}

// NewInstrumentedStore registers the vectorstore metrics on reg and wraps next.
func NewInstrumentedStore(next Store, reg prometheus.Registerer) *InstrumentedStore {
	factory := promauto.With(reg)
	return &InstrumentedStore{
		next: next,
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "repoindex",
				Subsystem: "vectorstore",
				Name:      "operation_duration_seconds",
				Help:      "Duration of vector store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repoindex",
				Subsystem: "vectorstore",
				Name:      "operation_errors_total",
				Help:      "Total number of failed vector store operations",
			},
			[]string{"operation"},
		),
		points: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "repoindex",
				Subsystem: "vectorstore",
				Name:      "points_upserted_total",
				Help:      "Total number of points written",
			},
		),
	}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.errors.WithLabelValues(op).Inc()
	}
}

func (s *InstrumentedStore) CreateCollection(ctx context.Context, name string, dims int) (err error) {
	defer func(start time.Time) { s.observe("create_collection", start, err) }(time.Now())
	return s.next.CreateCollection(ctx, name, dims)
}

func (s *InstrumentedStore) DeleteCollection(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe("delete_collection", start, err) }(time.Now())
	return s.next.DeleteCollection(ctx, name)
}

func (s *InstrumentedStore) CollectionExists(ctx context.Context, name string) (ok bool, err error) {
	defer func(start time.Time) { s.observe("collection_exists", start, err) }(time.Now())
	return s.next.CollectionExists(ctx, name)
}

func (s *InstrumentedStore) Upsert(ctx context.Context, name string, points []Point) (err error) {
	defer func(start time.Time) {
		s.observe("upsert", start, err)
		if err == nil {
			s.points.Add(float64(len(points)))
		}
	}(time.Now())
	return s.next.Upsert(ctx, name, points)
}

func (s *InstrumentedStore) Search(ctx context.Context, name string, vector []float32, k int) (hits []ScoredPoint, err error) {
	defer func(start time.Time) { s.observe("search", start, err) }(time.Now())
	return s.next.Search(ctx, name, vector, k)
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

var _ Store = (*InstrumentedStore)(nil)
