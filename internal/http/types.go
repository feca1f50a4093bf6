package http

import "github.com/fyrsmithlabs/repoindex/internal/indexer"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// ExistsResponse is the response body for GET /repo/:name.
type ExistsResponse struct {
	Message string `json:"message"`
	Exists  bool   `json:"exists"`
}

// CreateRequest is the request body for POST /repo.
type CreateRequest struct {
	RepoName string `json:"repo_name"`
}

// CreateResponse is the response body for POST /repo.
type CreateResponse struct {
	Message   string `json:"message"`
	Dimension int    `json:"dimension,omitempty"`
}

// InsertRequest is the request body for POST /insert-vectors/:name.
type InsertRequest struct {
	RootPath        string   `json:"root_path"`
	ExcludePatterns []string `json:"exclude_patterns"`
	UseIgnoreFiles  bool     `json:"use_ignore_files"`
}

// InsertResponse is the response body for POST /insert-vectors/:name.
type InsertResponse struct {
	Message string               `json:"message"`
	Result  *indexer.IndexResult `json:"result"`
}

// SearchRequest is the optional JSON body for POST /search/:name. Query
// parameters take precedence.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchResponse is the response body for POST /search/:name.
type SearchResponse struct {
	Results []indexer.SearchResult `json:"results"`
}
