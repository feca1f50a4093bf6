package indexer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowedRoots is returned by ResolveRoot for a path that does not
// lie under any allowed root. It is always wrapped together with
// ErrInvalidInput.
var ErrOutsideAllowedRoots = errors.New("path is outside the allowed roots")

// ResolveRoot makes root absolute and, when allowed is non-empty, requires
// it to lie under one of the allowed directories.
//
// Containment is decided on symlink-resolved paths so a link inside an
// allowed root cannot point the walker elsewhere. The resolved path is
// returned in that case; it is what the walker must be given. Missing path
// components are resolved through their deepest existing ancestor.
func ResolveRoot(root string, allowed []string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: root path is required", ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %q: %v", ErrInvalidInput, root, err)
	}
	if len(allowed) == 0 {
		return abs, nil
	}

	resolved := evalSymlinks(abs)
	for _, dir := range allowed {
		if within(evalSymlinks(filepath.Clean(dir)), resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrOutsideAllowedRoots, abs)
}

// evalSymlinks resolves the deepest existing ancestor of path and appends
// the rest unchanged.
func evalSymlinks(path string) string {
	rest := ""
	for dir := path; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
