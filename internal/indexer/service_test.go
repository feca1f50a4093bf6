package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/events"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/repository"
	"github.com/fyrsmithlabs/repoindex/internal/secrets"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

// writeRepo creates:
//
//	root/
//	  main.go       (3 lines)
//	  blob.bin      (binary)
//	  pkg/util.go   (1 line)
func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x7f, 'E', 'L', 'F', 0, 1, 2}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "util.go"), []byte("package pkg"), 0o644))
	return root
}

func TestNewService_Validation(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)

	_, err = NewService(Config{}, nil, &hashEmbedder{})
	assert.Error(t, err)
	_, err = NewService(Config{}, store, nil)
	assert.Error(t, err)

	svc, err := NewService(Config{}, store, &hashEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), svc.cfg)
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(config.IndexConfig{BatchSize: 8, Workers: 3, DefaultTopK: 5, MaxTopK: 10})
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 10, cfg.MaxTopK)

	assert.Equal(t, DefaultConfig(), ConfigFromSettings(config.IndexConfig{}))
}

func TestService_CreateRepository(t *testing.T) {
	ctx := context.Background()
	svc, emb, store := newTestService(t, Config{})

	exists, err := svc.RepositoryExists(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, svc.CreateRepository(ctx, "demo"))
	exists, err = svc.RepositoryExists(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.IndexRepository(ctx, "demo", IndexRequest{Root: writeRepo(t)})
	require.NoError(t, err)

	// recreating drops existing points
	require.NoError(t, svc.CreateRepository(ctx, "demo"))
	hits, err := store.Search(ctx, "demo", emb.vector("package"), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = svc.RepositoryExists(ctx, "bad name!")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, svc.CreateRepository(ctx, ""), ErrInvalidInput)
}

func TestService_IndexRepository(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	logger := logging.NewTestLogger()
	svc, emb, _ := newTestService(t, Config{BatchSize: 2}, WithMetrics(metrics), WithLogger(logger.Logger))
	root := writeRepo(t)

	res, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)

	// 2 folders, 2 text files, 4 lines
	assert.Equal(t, "demo", res.Repository)
	assert.Equal(t, root, res.Root)
	assert.Equal(t, 2, res.Folders)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 4, res.Lines)
	assert.Equal(t, 8, res.Points)
	assert.Equal(t, 1, res.BinarySkipped)
	assert.Zero(t, res.Unreadable)
	assert.Empty(t, res.Branch)
	assert.False(t, res.IndexedAt.IsZero())
	assert.Equal(t, 4, emb.calls, "8 records in batches of 2")

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.RecordsIndexed.WithLabelValues("line")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BinarySkipped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.IndexRuns.WithLabelValues("ok")))
	logger.AssertLogged(t, zapcore.InfoLevel, "repository indexed")

	// the collection was created on demand
	exists, err := svc.RepositoryExists(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_IndexRepository_Reindex(t *testing.T) {
	ctx := context.Background()
	svc, emb, store := newTestService(t, Config{})
	root := writeRepo(t)

	_, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)
	_, err = svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)

	hits, err := store.Search(ctx, "demo", emb.vector("package"), 100)
	require.NoError(t, err)
	assert.Len(t, hits, 8, "stable ids overwrite instead of duplicating")
}

func TestService_IndexRepository_Exclusions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	root := writeRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("pkg/\n"), 0o644))

	res, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root, ExcludePatterns: []string{"*.bin"}})
	require.NoError(t, err)
	assert.Zero(t, res.BinarySkipped)
	assert.Equal(t, 2, res.Folders, "ignore files are opt-in")
	assert.Equal(t, 1, res.Excluded)

	res, err = svc.IndexRepository(ctx, "demo2", IndexRequest{Root: root, UseIgnoreFiles: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Folders)
	assert.Equal(t, 1, res.Excluded)

	_, err = svc.IndexRepository(ctx, "demo3", IndexRequest{Root: root, ExcludePatterns: []string{"[broken"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_IndexRepository_ConfiguredExclusions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{ExcludePatterns: []string{"*.bin"}})
	root := writeRepo(t)

	res, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root, ExcludePatterns: []string{"pkg/"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Excluded, "configured and requested patterns combine")
	assert.Equal(t, 1, res.Folders)
	assert.Zero(t, res.BinarySkipped)
}

func TestService_IndexRepository_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})

	_, err := svc.IndexRepository(ctx, "demo", IndexRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.IndexRepository(ctx, "demo", IndexRequest{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.IndexRepository(ctx, "../demo", IndexRequest{Root: t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_IndexRepository_EmbedFailure(t *testing.T) {
	ctx := context.Background()
	svc, emb, _ := newTestService(t, Config{})
	emb.fail = errors.New("model unavailable")

	_, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: writeRepo(t)})
	assert.ErrorContains(t, err, "model unavailable")
}

func TestService_IndexRepository_Events(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	logger := logging.NewTestLogger()
	svc, emb, _ := newTestService(t, Config{}, WithEvents(pub), WithLogger(logger.Logger))
	root := writeRepo(t)

	res, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{events.StatusStarted, events.StatusCompleted}, pub.statuses())

	done := pub.events[1]
	assert.Equal(t, pub.events[0].RunID, done.RunID)
	assert.NotEmpty(t, done.RunID)
	assert.Equal(t, "demo", done.Repository)
	assert.Equal(t, res.Points, done.Points)
	assert.Empty(t, done.Error)

	emb.fail = errors.New("model unavailable")
	_, err = svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.Error(t, err)
	require.Len(t, pub.events, 4)
	assert.Equal(t, events.StatusFailed, pub.events[3].Status)
	assert.Contains(t, pub.events[3].Error, "model unavailable")
	assert.NotEqual(t, done.RunID, pub.events[3].RunID)

	// Invalid names never reach the publisher.
	_, err = svc.IndexRepository(ctx, "bad name", IndexRequest{Root: root})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, pub.events, 4)

	// Publish failures are logged, not returned.
	emb.fail = nil
	pub.fail = errors.New("nats down")
	_, err = svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)
	logger.AssertLogged(t, zapcore.WarnLevel, "publishing index event failed")
}

func TestService_IndexRepository_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc, _, _ := newTestService(t, Config{})

	_, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: writeRepo(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	svc, emb, _ := newTestService(t, Config{})
	root := writeRepo(t)

	_, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)

	t.Run("line hit carries context", func(t *testing.T) {
		results, err := svc.Search(ctx, "demo", "func main() {}", 3)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.LessOrEqual(t, len(results), 3)

		top := results[0]
		assert.Equal(t, "line", top.Kind)
		assert.Equal(t, filepath.Join(root, "main.go"), top.Path)
		assert.Equal(t, 3, top.LineNumber)
		assert.Equal(t, []repository.LineContext{{LineNumber: 2, Content: ""}}, top.Context)
		assert.InDelta(t, 1.0, top.Score, 1e-5)
		assert.Equal(t, "demo", top.Metadata[keyRepository])
		assert.IsType(t, repository.LineRecord{}, top.Record)
	})

	t.Run("folder hit", func(t *testing.T) {
		results, err := svc.Search(ctx, "demo", "Folder contains 1 items", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "folder", results[0].Kind)
		assert.Equal(t, filepath.Join(root, "pkg"), results[0].Path)
		assert.Equal(t, 1, results[0].EntryCount)
		assert.Equal(t, []string{filepath.Join(root, "pkg", "util.go")}, results[0].Files)
	})

	t.Run("default and clamped top_k", func(t *testing.T) {
		results, err := svc.Search(ctx, "demo", "package", 0)
		require.NoError(t, err)
		assert.Len(t, results, 8, "default 20 clamped to the collection size")

		_, err = svc.Search(ctx, "demo", "package", 1000)
		require.NoError(t, err)
	})

	t.Run("scores descend", func(t *testing.T) {
		results, err := svc.Search(ctx, "demo", "package main", 8)
		require.NoError(t, err)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := svc.Search(ctx, "demo", "", 5)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Search(ctx, "demo", "x", -1)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Search(ctx, "unknown", "x", 5)
		assert.ErrorIs(t, err, ErrRepositoryNotFound)
	})

	assert.Contains(t, emb.queries, "func main() {}")
}

func TestService_Search_SkipsInvalidPayload(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger()
	svc, emb, store := newTestService(t, Config{}, WithLogger(logger.Logger))

	require.NoError(t, svc.CreateRepository(ctx, "demo"))
	require.NoError(t, store.Upsert(ctx, "demo", []vectorstore.Point{
		{ID: "6ba7b810-9dad-51d1-80b4-00c04fd430c8", Vector: emb.vector("q"), Payload: map[string]interface{}{"type": "socket"}},
	}))

	results, err := svc.Search(ctx, "demo", "q", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	logger.AssertLogged(t, zapcore.WarnLevel, "invalid payload")
}

func TestService_SecretScrubbing(t *testing.T) {
	ctx := context.Background()
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	svc, _, _ := newTestService(t, Config{}, WithScrubber(scrubber))

	token := "ghp_" + strings.Repeat("x", 36)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ci.yml"), []byte("env:\n  TOKEN: "+token+"\n"), 0o644))

	res, err := svc.IndexRepository(ctx, "demo", IndexRequest{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Redacted, "file, line 2 and line 1's next context")

	results, err := svc.Search(ctx, "demo", "TOKEN: "+secrets.DefaultRedaction, 20)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, r.Content, token)
		for _, c := range r.Context {
			assert.NotContains(t, c.Content, token)
		}
	}
	assert.Equal(t, "line", results[0].Kind)
	assert.Equal(t, []interface{}{"github-token"}, results[0].Metadata[keyRedactedRules])
}

func TestService_LockReleasesEntries(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	unlock := svc.lock("demo")
	acquired := make(chan struct{})
	go func() {
		release := svc.lock("demo")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired a held repository lock")
	case <-time.After(50 * time.Millisecond):
	}

	other := svc.lock("other")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.locks) == 0
	}, time.Second, 5*time.Millisecond)
}
