package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
)

type fakeIndexer struct {
	repos      map[string]bool
	lastIndex  indexer.IndexRequest
	lastQuery  string
	lastTopK   int
	results    []indexer.SearchResult
	indexErr   error
	unexpected error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{repos: map[string]bool{"demo": true}}
}

func (f *fakeIndexer) RepositoryExists(_ context.Context, name string) (bool, error) {
	if f.unexpected != nil {
		return false, f.unexpected
	}
	if strings.ContainsAny(name, " !") {
		return false, fmt.Errorf("%w: bad name", indexer.ErrInvalidInput)
	}
	return f.repos[name], nil
}

func (f *fakeIndexer) CreateRepository(_ context.Context, name string) error {
	f.repos[name] = true
	return nil
}

func (f *fakeIndexer) IndexRepository(_ context.Context, name string, req indexer.IndexRequest) (*indexer.IndexResult, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	f.lastIndex = req
	return &indexer.IndexResult{Repository: name, Root: req.Root, Points: 12, Files: 2}, nil
}

func (f *fakeIndexer) Search(_ context.Context, name, query string, topK int) ([]indexer.SearchResult, error) {
	if !f.repos[name] {
		return nil, fmt.Errorf("%w: %s", indexer.ErrRepositoryNotFound, name)
	}
	f.lastQuery, f.lastTopK = query, topK
	return f.results, nil
}

func setupTestServer(t *testing.T, cfg *Config) (*Server, *fakeIndexer) {
	t.Helper()
	idx := newFakeIndexer()
	server, err := NewServer(idx, zap.NewNop(), cfg)
	require.NoError(t, err)
	return server, idx
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, _ := setupTestServer(t, nil)
		assert.Equal(t, "127.0.0.1", server.config.Host)
		assert.Equal(t, 8000, server.config.Port)
		assert.NotNil(t, server.config.Gatherer)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newFakeIndexer(), nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when indexer is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "indexer cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	rec := do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "repoindex_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	server, _ := setupTestServer(t, &Config{Host: "127.0.0.1", Port: 8000, Gatherer: reg})
	rec := do(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "repoindex_test_total 1")
}

func TestHandleExists(t *testing.T) {
	server, idx := setupTestServer(t, nil)

	rec := do(t, server, http.MethodGet, "/repo/demo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ExistsResponse](t, rec)
	assert.True(t, resp.Exists)
	assert.Equal(t, "Repository 'demo' exists.", resp.Message)

	rec = do(t, server, http.MethodGet, "/repo/other", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ExistsResponse](t, rec)
	assert.False(t, resp.Exists)
	assert.Equal(t, "Repository 'other' does not exist.", resp.Message)

	rec = do(t, server, http.MethodGet, "/repo/bad!name", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	idx.unexpected = errors.New("store unavailable at 10.0.0.1")
	rec = do(t, server, http.MethodGet, "/repo/demo", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1", "internal details are not leaked")
}

func TestHandleCreate(t *testing.T) {
	server, idx := setupTestServer(t, &Config{Host: "127.0.0.1", Port: 8000, Dimension: 384})

	rec := do(t, server, http.MethodPost, "/repo", `{"repo_name":"fresh"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CreateResponse](t, rec)
	assert.Equal(t, "Repository 'fresh' created with vector size 384", resp.Message)
	assert.True(t, idx.repos["fresh"])

	rec = do(t, server, http.MethodPost, "/repo", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodPost, "/repo", `{"repo_name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInsert(t *testing.T) {
	allowed := t.TempDir()
	server, idx := setupTestServer(t, &Config{Host: "127.0.0.1", Port: 8000, AllowedRoots: []string{allowed}})

	t.Run("indexes under an allowed root", func(t *testing.T) {
		root := filepath.Join(allowed, "project")
		body := fmt.Sprintf(`{"root_path":%q,"exclude_patterns":["*.log"],"use_ignore_files":true}`, root+"/./")
		rec := do(t, server, http.MethodPost, "/insert-vectors/demo", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[InsertResponse](t, rec)
		assert.Equal(t, "12 vectors inserted into 'demo'", resp.Message)
		assert.Equal(t, 12, resp.Result.Points)
		assert.Equal(t, indexer.IndexRequest{Root: root, ExcludePatterns: []string{"*.log"}, UseIgnoreFiles: true}, idx.lastIndex)
	})

	t.Run("rejects roots outside the allow list", func(t *testing.T) {
		for _, root := range []string{t.TempDir(), allowed + "-sibling", filepath.Join(allowed, "..")} {
			rec := do(t, server, http.MethodPost, "/insert-vectors/demo", fmt.Sprintf(`{"root_path":%q}`, root))
			assert.Equal(t, http.StatusForbidden, rec.Code, root)
		}
	})

	t.Run("rejects links escaping an allowed root", func(t *testing.T) {
		escape := filepath.Join(allowed, "escape")
		require.NoError(t, os.Symlink(t.TempDir(), escape))
		idx.lastIndex = indexer.IndexRequest{}

		for _, root := range []string{escape, filepath.Join(escape, "nested")} {
			rec := do(t, server, http.MethodPost, "/insert-vectors/demo", fmt.Sprintf(`{"root_path":%q}`, root))
			assert.Equal(t, http.StatusForbidden, rec.Code, root)
		}
		assert.Empty(t, idx.lastIndex.Root)
	})

	t.Run("requires root_path", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/insert-vectors/demo", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps service errors", func(t *testing.T) {
		idx.indexErr = fmt.Errorf("walking: %w", indexer.ErrInvalidInput)
		defer func() { idx.indexErr = nil }()
		rec := do(t, server, http.MethodPost, "/insert-vectors/demo", fmt.Sprintf(`{"root_path":%q}`, allowed))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	server, idx := setupTestServer(t, nil)
	idx.results = []indexer.SearchResult{{Score: 0.9, Kind: "line", Path: "/repo/main.go", LineNumber: 3, Content: "func main() {}"}}

	t.Run("query parameters", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/search/demo?query=main&top_k=5", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[SearchResponse](t, rec)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, 3, resp.Results[0].LineNumber)
		assert.Equal(t, "main", idx.lastQuery)
		assert.Equal(t, 5, idx.lastTopK)
	})

	t.Run("json body", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/search/demo", `{"query":"walker","top_k":7}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "walker", idx.lastQuery)
		assert.Equal(t, 7, idx.lastTopK)
	})

	t.Run("top_k defaults to the service default", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/search/demo?query=x", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, idx.lastTopK)
	})

	t.Run("empty results render as a list", func(t *testing.T) {
		idx.results = nil
		rec := do(t, server, http.MethodPost, "/search/demo?query=x", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
	})

	t.Run("errors", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodPost, "/search/demo", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodPost, "/search/demo?query=x&top_k=many", "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodPost, "/search/missing?query=x", "").Code)
	})
}
