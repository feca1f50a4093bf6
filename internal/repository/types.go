package repository

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags the three record variants.
type Kind int

const (
	KindFolder Kind = iota + 1
	KindFile
	KindLine
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	case KindLine:
		return "line"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "folder":
		return KindFolder, nil
	case "file":
		return KindFile, nil
	case "line":
		return KindLine, nil
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

// Record is implemented only by FolderRecord, FileRecord and LineRecord.
type Record interface {
	Kind() Kind
	// Key is the record's unique key within its kind.
	Key() string
	// EmbeddingText is the text that represents the record in vector space.
	EmbeddingText() string

	sealed()
}

// FolderRecord describes one directory.
type FolderRecord struct {
	Path string `json:"path" yaml:"path"`
	// EntryCount counts every direct child the directory lists.
	EntryCount int `json:"entry_count" yaml:"entry_count"`
	// ChildFilePaths holds the direct children that are regular files,
	// binary files included, sorted.
	ChildFilePaths []string `json:"child_file_paths" yaml:"child_file_paths"`
	// Parent is the enclosing folder's path; empty for the root.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

func (FolderRecord) Kind() Kind        { return KindFolder }
func (r FolderRecord) Key() string     { return r.Path }
func (FolderRecord) sealed()           {}
func (r FolderRecord) Summary() string { return FolderSummary(r.EntryCount) }

func (r FolderRecord) EmbeddingText() string { return r.Summary() }

// FolderSummary is the descriptive text stored for a folder.
func FolderSummary(entries int) string {
	return fmt.Sprintf("Folder contains %d items", entries)
}

// FileRecord describes one text file.
type FileRecord struct {
	Path         string    `json:"path" yaml:"path"`
	Content      string    `json:"content" yaml:"content"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	// FileType is the filename suffix including the dot, or empty.
	FileType  string `json:"file_type" yaml:"file_type"`
	LineCount int    `json:"line_count" yaml:"line_count"`
}

func (FileRecord) Kind() Kind              { return KindFile }
func (r FileRecord) Key() string           { return r.Path }
func (r FileRecord) EmbeddingText() string { return r.Content }
func (FileRecord) sealed()                 {}

// LineContext is a neighbouring line attached to a LineRecord.
type LineContext struct {
	LineNumber int    `json:"line_number" yaml:"line_number"`
	Content    string `json:"content" yaml:"content"`
}

// LineRecord describes one line of a text file.
type LineRecord struct {
	Path       string `json:"path" yaml:"path"`
	LineNumber int    `json:"line_number" yaml:"line_number"`
	// Content is the line with surrounding whitespace trimmed.
	Content  string       `json:"content" yaml:"content"`
	Previous *LineContext `json:"previous,omitempty" yaml:"previous,omitempty"`
	Next     *LineContext `json:"next,omitempty" yaml:"next,omitempty"`
}

func (LineRecord) Kind() Kind              { return KindLine }
func (r LineRecord) Key() string           { return r.LineKey().String() }
func (r LineRecord) EmbeddingText() string { return r.Content }
func (LineRecord) sealed()                 {}

// LineKey returns the record's map key.
func (r LineRecord) LineKey() LineKey {
	return LineKey{Path: r.Path, Number: r.LineNumber}
}

// Context returns the present neighbours in line order.
func (r LineRecord) Context() []LineContext {
	out := make([]LineContext, 0, 2)
	if r.Previous != nil {
		out = append(out, *r.Previous)
	}
	if r.Next != nil {
		out = append(out, *r.Next)
	}
	return out
}

// LineKey identifies a line by file path and 1-based number.
type LineKey struct {
	Path   string
	Number int
}

// String renders the key as "path:number".
func (k LineKey) String() string {
	return k.Path + ":" + strconv.Itoa(k.Number)
}

// ParseLineKey parses "path:number", splitting on the last colon so paths
// containing colons survive.
func ParseLineKey(s string) (LineKey, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx <= 0 {
		return LineKey{}, fmt.Errorf("invalid line key %q", s)
	}
	n, err := strconv.Atoi(s[idx+1:])
	if err != nil || n < 1 {
		return LineKey{}, fmt.Errorf("invalid line number in key %q", s)
	}
	return LineKey{Path: s[:idx], Number: n}, nil
}

// Stats counts what a walk produced and what it recovered from.
type Stats struct {
	Folders             int `json:"folders" yaml:"folders"`
	Files               int `json:"files" yaml:"files"`
	Lines               int `json:"lines" yaml:"lines"`
	BinarySkipped       int `json:"binary_skipped" yaml:"binary_skipped"`
	Unreadable          int `json:"unreadable" yaml:"unreadable"`
	BinaryCheckFailures int `json:"binary_check_failures" yaml:"binary_check_failures"`
	DecodeFallbacks     int `json:"decode_fallbacks" yaml:"decode_fallbacks"`
	Excluded            int `json:"excluded" yaml:"excluded"`
}

// Tree is the result of a walk: three keyed collections plus diagnostics.
type Tree struct {
	Root    string
	Folders map[string]FolderRecord
	Files   map[string]FileRecord
	Lines   map[LineKey]LineRecord
	Issues  []Issue
	Stats   Stats
}

func newTree(root string) *Tree {
	return &Tree{
		Root:    root,
		Folders: make(map[string]FolderRecord),
		Files:   make(map[string]FileRecord),
		Lines:   make(map[LineKey]LineRecord),
	}
}

// Len returns the total number of records.
func (t *Tree) Len() int {
	return len(t.Folders) + len(t.Files) + len(t.Lines)
}

// Records returns every record: folders, then files, then lines, each
// sorted by key.
func (t *Tree) Records() []Record {
	out := make([]Record, 0, t.Len())

	for _, p := range sortedKeys(t.Folders) {
		out = append(out, t.Folders[p])
	}
	for _, p := range sortedKeys(t.Files) {
		out = append(out, t.Files[p])
	}
	for _, k := range t.sortedLineKeys() {
		out = append(out, t.Lines[k])
	}
	return out
}

// FileLines returns the lines of one file in order.
func (t *Tree) FileLines(path string) []LineRecord {
	f, ok := t.Files[path]
	if !ok {
		return nil
	}
	out := make([]LineRecord, 0, f.LineCount)
	for n := 1; n <= f.LineCount; n++ {
		if l, ok := t.Lines[LineKey{Path: path, Number: n}]; ok {
			out = append(out, l)
		}
	}
	return out
}

// IssuesOf returns the recorded issues of one kind.
func (t *Tree) IssuesOf(kind IssueKind) []Issue {
	var out []Issue
	for _, is := range t.Issues {
		if is.Kind == kind {
			out = append(out, is)
		}
	}
	return out
}

func (t *Tree) sortedLineKeys() []LineKey {
	keys := make([]LineKey, 0, len(t.Lines))
	for k := range t.Lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Number < keys[j].Number
	})
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
