package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repoindex/internal/config"
)

func TestNewStore_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = filepath.Join(t.TempDir(), "vectors")

	s, err := NewStore(cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &ChromemStore{}, s)
	assert.DirExists(t, cfg.VectorStore.Chromem.Path)
}

func TestNewStore_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "pinecone"

	_, err := NewStore(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
