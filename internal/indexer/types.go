package indexer

import (
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/repository"
)

// IndexRequest describes one indexing run.
type IndexRequest struct {
	// Root is the directory to walk. Required.
	Root string `json:"root_path"`
	// ExcludePatterns are doublestar globs left out of the walk.
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	// UseIgnoreFiles honours .gitignore, .repoindexignore and
	// .repoindex.toml at the root.
	UseIgnoreFiles bool `json:"use_ignore_files,omitempty"`
}

// IndexResult summarizes a completed run.
type IndexResult struct {
	Repository    string        `json:"repository"`
	Root          string        `json:"root"`
	Branch        string        `json:"branch,omitempty"`
	Points        int           `json:"points"`
	Folders       int           `json:"folders"`
	Files         int           `json:"files"`
	Lines         int           `json:"lines"`
	BinarySkipped int           `json:"binary_skipped"`
	Unreadable    int           `json:"unreadable"`
	Excluded      int           `json:"excluded"`
	Redacted      int           `json:"redacted"`
	Duration      time.Duration `json:"duration_ns"`
	IndexedAt     time.Time     `json:"indexed_at"`
}

// SearchResult is one hit, flattened for transport. Fields that do not
// apply to the hit's kind are zero.
type SearchResult struct {
	Score      float32                  `json:"score"`
	Kind       string                   `json:"type"`
	Path       string                   `json:"path"`
	LineNumber int                      `json:"line_number,omitempty"`
	Content    string                   `json:"content,omitempty"`
	Context    []repository.LineContext `json:"context,omitempty"`
	EntryCount int                      `json:"entry_count,omitempty"`
	Files      []string                 `json:"child_file_paths,omitempty"`
	Metadata   map[string]interface{}   `json:"metadata,omitempty"`

	// Record is the decoded record, for callers that type-switch.
	Record repository.Record `json:"-"`
}

func newSearchResult(score float32, rec repository.Record, extra map[string]interface{}) SearchResult {
	res := SearchResult{
		Score:    score,
		Kind:     rec.Kind().String(),
		Path:     rec.Key(),
		Metadata: extra,
		Record:   rec,
	}
	switch r := rec.(type) {
	case repository.FolderRecord:
		res.Content = r.Summary()
		res.EntryCount = r.EntryCount
		res.Files = r.ChildFilePaths
	case repository.FileRecord:
		res.Content = r.Content
	case repository.LineRecord:
		res.Path = r.Path
		res.LineNumber = r.LineNumber
		res.Content = r.Content
		res.Context = r.Context()
	}
	return res
}
