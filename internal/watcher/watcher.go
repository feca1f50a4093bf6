// Package watcher re-runs a callback when files under a directory change.
//
// Events are debounced: the callback fires once after the tree has been
// quiet for the configured period, however many events arrived. It is
// meant for full re-indexing, so the callback receives no event detail.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/ignore"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root     string
	Debounce time.Duration
	// Matcher, if set, keeps excluded directories unwatched and excluded
	// files from triggering. Changes to its control files reload it.
	Matcher *ignore.Matcher
	Logger  *logging.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	root     string
	debounce time.Duration
	matcher  *ignore.Matcher
	logger   *logging.Logger
	onChange func(context.Context) error
	fsw      *fsnotify.Watcher
}

// New creates a watcher that calls onChange after changes settle.
func New(cfg Config, onChange func(context.Context) error) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("onChange callback is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		matcher:  cfg.Matcher,
		logger:   logger.Named("watcher"),
		onChange: onChange,
		fsw:      fsw,
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done. Callback errors are logged and
// do not stop the watcher. The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	w.logger.Info(ctx, "watching for changes",
		zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(ctx, event) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))

		case <-timer.C:
			pending = false
			w.logger.Debug(ctx, "changes settled, running callback")
			if err := w.onChange(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error(ctx, "change callback failed", zap.Error(err))
			}
		}
	}
}

// handle updates the watch set for event and reports whether it should
// (re)start the debounce timer.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	if isGitPath(rel) {
		return false
	}

	if w.matcher != nil && w.matcher.IsControlFile(rel) {
		if err := w.matcher.Reload(); err != nil {
			w.logger.Warn(ctx, "reloading exclusions failed", zap.Error(err))
		}
		return true
	}

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.excluded(rel, isDir) {
		return false
	}
	if isDir {
		if err := w.addTree(event.Name); err != nil {
			w.logger.Warn(ctx, "watching new directory failed",
				zap.String("path", event.Name), zap.Error(err))
		}
	}

	w.logger.Trace(ctx, "change detected",
		zap.String("path", event.Name), zap.String("op", event.Op.String()))
	return true
}

// addTree watches dir and every directory below it that is not excluded.
// Symlinked directories are not followed.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if path != w.root && (isGitPath(rel) || w.excluded(rel, true)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(rel string, isDir bool) bool {
	return w.matcher != nil && w.matcher.Match(rel, isDir)
}

func isGitPath(rel string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first == ".git"
}
