package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/qdrant"
)

// NewStore creates the backend named by cfg.VectorStore.Provider:
// "chromem" (default, embedded) or "qdrant" (remote, connects eagerly).
func NewStore(cfg *config.Config, logger *logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.VectorStore.Provider {
	case "chromem", "":
		store, err := NewChromemStore(ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		}, logger.Underlying().Named("chromem"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "qdrant":
		client, err := qdrant.NewGRPCClient(qdrant.ConfigFromSettings(cfg.Qdrant), logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return &QdrantStore{client: client}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
