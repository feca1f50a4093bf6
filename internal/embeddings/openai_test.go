package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAI struct {
	requests []map[string]interface{}
	reverse  bool
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/embeddings" || r.Header.Get("Authorization") != "Bearer sk-test" {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
		return
	}
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.requests = append(f.requests, body)

	inputs, _ := body["input"].([]interface{})
	data := make([]map[string]interface{}, 0, len(inputs))
	for i := range inputs {
		data = append(data, map[string]interface{}{
			"object":    "embedding",
			"index":     i,
			"embedding": []float32{float32(i), 1},
		})
	}
	if f.reverse {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  body["model"],
	})
}

func newOpenAITest(t *testing.T, fake *fakeOpenAI) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	fake := &fakeOpenAI{reverse: true}
	p := newOpenAITest(t, fake)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0], "vectors must follow input order")
	}

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "text-embedding-ada-002", fake.requests[0]["model"])
	assert.Equal(t, []interface{}{"a", " ", "c"}, fake.requests[0]["input"])
	assert.Equal(t, 1536, p.Dimension())
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	p := newOpenAITest(t, &fakeOpenAI{})

	vec, err := p.EmbedQuery(context.Background(), "parse config")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(&fakeOpenAI{})
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-wrong", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestOpenAIProvider_RateLimiterHonoursContext(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1", RequestsPerMinute: 1})
	require.NoError(t, err)
	require.NotNil(t, p.limiter)

	// Drain the single token so the next call has to wait.
	require.True(t, p.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.EmbedQuery(ctx, "q")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", RequestsPerMinute: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "text-embedding-3-small", Dimension: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, p.Dimension())
	assert.Nil(t, p.limiter)
}
