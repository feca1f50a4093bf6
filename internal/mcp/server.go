package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
)

// Indexer is the service the tools forward to.
type Indexer interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)
	CreateRepository(ctx context.Context, name string) error
	IndexRepository(ctx context.Context, name string, req indexer.IndexRequest) (*indexer.IndexResult, error)
	Search(ctx context.Context, name, query string, topK int) ([]indexer.SearchResult, error)
}

// Server is an MCP server backed by an Indexer.
type Server struct {
	mcp     *mcp.Server
	indexer Indexer
	metrics *Metrics
	logger  *zap.Logger
	roots   []string
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "repoindex")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// AllowedRoots restricts repository_index to paths under these
	// directories. Empty allows any path.
	AllowedRoots []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "repoindex",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the tools registered.
func NewServer(cfg *Config, idx Indexer) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if idx == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		indexer: idx,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
		roots:   cfg.AllowedRoots,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves a single session on t until the client disconnects
// or ctx is done.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("starting MCP server")
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
