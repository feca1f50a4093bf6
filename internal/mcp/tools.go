package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
)

type repositoryNameInput struct {
	Name string `json:"name" jsonschema:"Repository (collection) name: letters, digits, '_' or '-', at most 64 characters"`
}

type repositoryExistsOutput struct {
	Name   string `json:"name" jsonschema:"Repository name"`
	Exists bool   `json:"exists" jsonschema:"Whether the repository has been created or indexed"`
}

type repositoryCreateOutput struct {
	Name    string `json:"name" jsonschema:"Repository name"`
	Created bool   `json:"created" jsonschema:"Always true on success"`
}

type repositoryIndexInput struct {
	Name            string   `json:"name" jsonschema:"Repository (collection) name"`
	Path            string   `json:"path" jsonschema:"Absolute path of the directory to index"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" jsonschema:"Glob patterns to leave out (e.g. vendor/**)"`
	UseIgnoreFiles  bool     `json:"use_ignore_files,omitempty" jsonschema:"Honour .gitignore, .repoindexignore and .repoindex.toml"`
}

type repositorySearchInput struct {
	Name  string `json:"name" jsonschema:"Repository (collection) name"`
	Query string `json:"query" jsonschema:"Natural language or code query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum results (default 20, at most 100)"`
}

type repositorySearchOutput struct {
	Results []indexer.SearchResult `json:"results" jsonschema:"Matching folders, files and lines, most similar first"`
	Count   int                    `json:"count" jsonschema:"Number of results returned"`
	Query   string                 `json:"query" jsonschema:"Original search query"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repository_exists",
		Description: "Check whether a repository has been created or indexed",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args repositoryNameInput) (*mcp.CallToolResult, repositoryExistsOutput, error) {
		var toolErr error
		defer s.track(ctx, "repository_exists", &toolErr)()

		exists, err := s.indexer.RepositoryExists(ctx, args.Name)
		if err != nil {
			toolErr = err
			return nil, repositoryExistsOutput{}, err
		}
		return nil, repositoryExistsOutput{Name: args.Name, Exists: exists}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repository_create",
		Description: "Create an empty repository, dropping any previously indexed content",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args repositoryNameInput) (*mcp.CallToolResult, repositoryCreateOutput, error) {
		var toolErr error
		defer s.track(ctx, "repository_create", &toolErr)()

		if err := s.indexer.CreateRepository(ctx, args.Name); err != nil {
			toolErr = err
			return nil, repositoryCreateOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Repository '%s' created", args.Name)},
			},
		}, repositoryCreateOutput{Name: args.Name, Created: true}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repository_index",
		Description: "Walk a directory and index its folders, files and lines for semantic search",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args repositoryIndexInput) (*mcp.CallToolResult, indexer.IndexResult, error) {
		var toolErr error
		defer s.track(ctx, "repository_index", &toolErr)()

		root, err := s.checkRoot(args.Path)
		if err != nil {
			toolErr = err
			return nil, indexer.IndexResult{}, err
		}

		res, err := s.indexer.IndexRepository(ctx, args.Name, indexer.IndexRequest{
			Root:            root,
			ExcludePatterns: args.ExcludePatterns,
			UseIgnoreFiles:  args.UseIgnoreFiles,
		})
		if err != nil {
			toolErr = fmt.Errorf("repository index failed: %w", err)
			return nil, indexer.IndexResult{}, toolErr
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d vectors inserted into '%s' (%d files, %d lines, %d binary files skipped)",
					res.Points, args.Name, res.Files, res.Lines, res.BinarySkipped)},
			},
		}, *res, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repository_search",
		Description: "Semantic search over an indexed repository. Line results include the neighbouring lines.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args repositorySearchInput) (*mcp.CallToolResult, repositorySearchOutput, error) {
		var toolErr error
		defer s.track(ctx, "repository_search", &toolErr)()

		results, err := s.indexer.Search(ctx, args.Name, args.Query, args.TopK)
		if err != nil {
			toolErr = fmt.Errorf("repository search failed: %w", err)
			return nil, repositorySearchOutput{}, toolErr
		}
		if results == nil {
			results = []indexer.SearchResult{}
		}

		output := repositorySearchOutput{
			Results: results,
			Count:   len(results),
			Query:   args.Query,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Found %d results for query: %s", output.Count, args.Query)},
			},
		}, output, nil
	})
}

// track records active-request and invocation metrics for one tool call.
// The returned func must be deferred; it reads *errp when it runs.
func (s *Server) track(ctx context.Context, tool string, errp *error) func() {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func() {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), *errp)
		if *errp != nil {
			s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(*errp))
		}
	}
}

// checkRoot requires an absolute path and, when allowed roots are
// configured, one that resolves under them.
func (s *Server) checkRoot(path string) (string, error) {
	if path != "" && !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: path must be absolute, got %q", indexer.ErrInvalidInput, path)
	}
	return indexer.ResolveRoot(path, s.roots)
}
