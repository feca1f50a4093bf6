package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the backend failed to produce vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embeddings for documents and queries.
type Provider interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Provider names accepted by NewProvider.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
)

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed" (default), "tei" or "openai".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI server URL.
	BaseURL string
	// CacheDir is the FastEmbed model cache directory.
	CacheDir string
	// Dimension overrides the dimension detected from the model name.
	Dimension int
	// Timeout bounds a single HTTP call for remote providers.
	Timeout time.Duration
	// ShowProgress enables model download progress bars.
	ShowProgress bool

	OpenAI OpenAIConfig
}

// ConfigFromSettings maps the user-facing embeddings section to a ProviderConfig.
func ConfigFromSettings(s config.EmbeddingsConfig) ProviderConfig {
	return ProviderConfig{
		Provider:  s.Provider,
		Model:     s.Model,
		BaseURL:   s.BaseURL,
		CacheDir:  s.CacheDir,
		Dimension: s.Dimension,
		Timeout:   s.Timeout.Duration(),
		OpenAI: OpenAIConfig{
			APIKey:            s.OpenAI.APIKey.Value(),
			BaseURL:           s.OpenAI.BaseURL,
			Model:             s.OpenAI.Model,
			RequestsPerMinute: s.OpenAI.RequestsPerMinute,
			Dimension:         s.Dimension,
			Timeout:           s.Timeout.Duration(),
		},
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderFastEmbed, "":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:        cfg.Model,
			CacheDir:     cfg.CacheDir,
			ShowProgress: cfg.ShowProgress,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderTEI:
		p, err := NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderOpenAI:
		oc := cfg.OpenAI
		if oc.Model == "" {
			oc.Model = cfg.Model
		}
		if oc.Dimension == 0 {
			oc.Dimension = cfg.Dimension
		}
		p, err := NewOpenAIProvider(oc)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// prepareInputs rejects an empty batch and replaces empty strings with a
// single space. Folder and blank-line records legitimately carry no text, but
// none of the backends accept an empty input.
func prepareInputs(texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		out[i] = t
	}
	return out, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
