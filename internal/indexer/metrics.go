package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/repoindex/internal/repository"
)

// Metrics holds Prometheus instruments for indexing and search.
//
// Metrics:
//   - repoindex_records_indexed_total{kind}
//   - repoindex_binary_files_skipped_total
//   - repoindex_unreadable_entries_total
//   - repoindex_secrets_redacted_total
//   - repoindex_index_duration_seconds
//   - repoindex_index_runs_total{status}
//   - repoindex_searches_total{status}
type Metrics struct {
	RecordsIndexed *prometheus.CounterVec
	BinarySkipped  prometheus.Counter
	Unreadable     prometheus.Counter
	Redacted       prometheus.Counter
	IndexDuration  prometheus.Histogram
	IndexRuns      *prometheus.CounterVec
	Searches       *prometheus.CounterVec
}

// NewMetrics registers the instruments on reg. A nil reg creates
// unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsIndexed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repoindex_records_indexed_total",
			Help: "Records embedded and stored, by kind",
		}, []string{"kind"}),
		BinarySkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "repoindex_binary_files_skipped_total",
			Help: "Files skipped because they looked binary",
		}),
		Unreadable: f.NewCounter(prometheus.CounterOpts{
			Name: "repoindex_unreadable_entries_total",
			Help: "Files and directories that could not be read",
		}),
		Redacted: f.NewCounter(prometheus.CounterOpts{
			Name: "repoindex_secrets_redacted_total",
			Help: "Records whose content had secrets redacted",
		}),
		IndexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "repoindex_index_duration_seconds",
			Help:    "Duration of a full repository index run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		IndexRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repoindex_index_runs_total",
			Help: "Index runs by outcome",
		}, []string{"status"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repoindex_searches_total",
			Help: "Search requests by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) observeTree(tree *repository.Tree) {
	if m == nil {
		return
	}
	m.RecordsIndexed.WithLabelValues(repository.KindFolder.String()).Add(float64(len(tree.Folders)))
	m.RecordsIndexed.WithLabelValues(repository.KindFile.String()).Add(float64(len(tree.Files)))
	m.RecordsIndexed.WithLabelValues(repository.KindLine.String()).Add(float64(len(tree.Lines)))
	m.BinarySkipped.Add(float64(tree.Stats.BinarySkipped))
	m.Unreadable.Add(float64(tree.Stats.Unreadable))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
