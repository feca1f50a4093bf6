// Package ignore decides which repository entries are left out of a walk.
//
// Nothing is excluded unless asked for. Rules come from three opt-in
// sources: gitignore-style files at the repository root, doublestar glob
// patterns, and the "exclude" list of a .repoindex.toml project file.
package ignore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// ProjectFile is the per-repository settings file read from the root.
const ProjectFile = ".repoindex.toml"

// DefaultIgnoreFiles are the gitignore-style files consulted when ignore
// files are enabled.
var DefaultIgnoreFiles = []string{".gitignore", ".repoindexignore"}

// ErrInvalidPattern is returned for a glob doublestar cannot parse.
var ErrInvalidPattern = errors.New("invalid exclude pattern")

// Options configures a Matcher.
type Options struct {
	Root string
	// Patterns are doublestar globs matched against root-relative,
	// slash-separated paths. A pattern without a slash also matches the
	// base name at any depth; a trailing slash limits it to directories.
	Patterns []string
	// UseIgnoreFiles loads IgnoreFiles from the root.
	UseIgnoreFiles bool
	IgnoreFiles    []string
	// UseProjectFile loads ProjectFile from the root.
	UseProjectFile bool
}

// ProjectConfig is the content of .repoindex.toml.
type ProjectConfig struct {
	Exclude        []string `toml:"exclude"`
	UseIgnoreFiles *bool    `toml:"use_ignore_files"`
}

// Matcher combines all exclusion sources. Safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	opts     Options
	ignores  []gitignore.GitIgnore
	patterns []string
}

// New builds a matcher and loads any requested files from opts.Root.
func New(opts Options) (*Matcher, error) {
	if len(opts.IgnoreFiles) == 0 {
		opts.IgnoreFiles = DefaultIgnoreFiles
	}
	m := &Matcher{opts: opts}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads ignore and project files from disk.
func (m *Matcher) Reload() error {
	patterns := append([]string(nil), m.opts.Patterns...)
	useIgnoreFiles := m.opts.UseIgnoreFiles

	if m.opts.UseProjectFile {
		project, err := LoadProjectConfig(m.opts.Root)
		if err != nil {
			return err
		}
		patterns = append(patterns, project.Exclude...)
		if project.UseIgnoreFiles != nil {
			useIgnoreFiles = *project.UseIgnoreFiles
		}
	}

	for _, p := range patterns {
		if !doublestar.ValidatePattern(strings.TrimSuffix(p, "/")) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}

	var ignores []gitignore.GitIgnore
	if useIgnoreFiles {
		for _, name := range m.opts.IgnoreFiles {
			if gi := loadIgnoreFile(filepath.Join(m.opts.Root, name), m.opts.Root); gi != nil {
				ignores = append(ignores, gi)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = patterns
	m.ignores = ignores
	return nil
}

// Empty reports whether the matcher has no rules at all.
func (m *Matcher) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns) == 0 && len(m.ignores) == 0
}

// Match reports whether the root-relative path is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if rel == "" || rel == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, gi := range m.ignores {
		if match := gi.Relative(rel, isDir); match != nil && match.Ignore() {
			return true
		}
	}
	for _, p := range m.patterns {
		if matchPattern(p, rel, isDir) {
			return true
		}
	}
	return false
}

// MatchAbs is Match for an absolute path under the root.
func (m *Matcher) MatchAbs(abs string, isDir bool) bool {
	rel, err := filepath.Rel(m.opts.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return m.Match(rel, isDir)
}

// IsControlFile reports whether a root-relative path is one of the files
// the matcher reads, so watchers can trigger Reload.
func (m *Matcher) IsControlFile(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == ProjectFile {
		return true
	}
	for _, name := range m.opts.IgnoreFiles {
		if rel == name {
			return true
		}
	}
	return false
}

func matchPattern(pattern, rel string, isDir bool) bool {
	if strings.HasSuffix(pattern, "/") {
		if !isDir {
			return false
		}
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

// LoadProjectConfig reads .repoindex.toml from root. A missing file yields
// an empty config.
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	var cfg ProjectConfig
	_, err := toml.DecodeFile(filepath.Join(root, ProjectFile), &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ProjectFile, err)
	}
	return &cfg, nil
}

// loadIgnoreFile parses one gitignore-style file, or returns nil if it is
// absent. The reader form closes the handle promptly on Windows.
func loadIgnoreFile(file, base string) gitignore.GitIgnore {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()
	return gitignore.New(f, base, nil)
}
