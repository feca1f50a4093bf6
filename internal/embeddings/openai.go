package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// maxOpenAIBatch is the largest number of inputs the embeddings endpoint
// accepts in one request.
const maxOpenAIBatch = 2048

// OpenAIConfig configures the OpenAI embeddings backend.
type OpenAIConfig struct {
	APIKey string
	// BaseURL targets an OpenAI-compatible server. Defaults to the public API.
	BaseURL string
	// Model defaults to text-embedding-ada-002.
	Model string
	// RequestsPerMinute caps outgoing calls. Zero disables limiting.
	RequestsPerMinute int
	// Dimension overrides detection from the model name.
	Dimension int
	Timeout   time.Duration
	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
}

// OpenAIProvider generates embeddings through the OpenAI API.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
	metrics   *Metrics
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key required", ErrInvalidConfig)
	}
	if cfg.RequestsPerMinute < 0 {
		return nil, fmt.Errorf("%w: requests per minute must not be negative", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	switch {
	case cfg.HTTPClient != nil:
		clientCfg.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 60
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = detectDimensionFromModel(model)
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		dimension: dim,
		limiter:   limiter,
		metrics:   NewMetrics(nil),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts, splitting into
// requests of at most 2048 inputs.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	inputs, err := prepareInputs(texts)
	if err != nil {
		return nil, err
	}

	vectors = make([][]float32, 0, len(inputs))
	for lo := 0; lo < len(inputs); lo += maxOpenAIBatch {
		hi := min(lo+maxOpenAIBatch, len(inputs))
		batch, err := p.embed(ctx, inputs[lo:hi])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed issues one request and returns vectors ordered like inputs.
func (p *OpenAIProvider) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(resp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrEmbeddingFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing vector for input %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}

// Dimension returns the configured or detected embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *OpenAIProvider) Close() error {
	return nil
}
