package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/fyrsmithlabs/repoindex/internal/repository"

// Matcher decides whether an entry is left out of the tree. path is
// relative to the walk root, slash-separated.
type Matcher interface {
	Match(path string, isDir bool) bool
}

// Walker builds metadata trees. The zero value is not usable; use NewWalker.
type Walker struct {
	logger  *logging.Logger
	tracer  trace.Tracer
	workers int
	matcher Matcher
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorkers bounds how many files are read concurrently. Values below 1
// select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithMatcher excludes matching entries. Excluded entries still count
// towards their parent's EntryCount but are neither read nor descended.
func WithMatcher(m Matcher) Option {
	return func(w *Walker) { w.matcher = m }
}

// WithTracer sets the tracer used for walk spans.
func WithTracer(t trace.Tracer) Option {
	return func(w *Walker) {
		if t != nil {
			w.tracer = t
		}
	}
}

// NewWalker creates a walker.
func NewWalker(opts ...Option) *Walker {
	w := &Walker{
		logger:  logging.NewNop(),
		tracer:  otel.Tracer(instrumentationName),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BuildMetadataTree walks root with a default Walker.
func BuildMetadataTree(ctx context.Context, root string) (*Tree, error) {
	return NewWalker().BuildMetadataTree(ctx, root)
}

// fileJob is a file discovered during traversal, read later by a worker.
type fileJob struct {
	path string
	// info is from Stat, so symlinks are already resolved.
	info fs.FileInfo
}

// BuildMetadataTree visits root and every directory reachable below it and
// returns their folder, file and line records.
//
// The only error conditions are an invalid root (ErrInvalidInput) and
// context cancellation.
func (w *Walker) BuildMetadataTree(ctx context.Context, root string) (*Tree, error) {
	ctx, span := w.tracer.Start(ctx, "repository.BuildMetadataTree",
		trace.WithAttributes(attribute.String("repository.root", root)))
	defer span.End()

	start := time.Now()

	root, err := validateRoot(root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid root")
		return nil, err
	}

	tree := newTree(root)
	var jobs []fileJob

	if err := w.visitDir(ctx, tree, root, "", &jobs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := w.readFiles(ctx, tree, jobs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sort.Slice(tree.Issues, func(i, j int) bool {
		if tree.Issues[i].Path != tree.Issues[j].Path {
			return tree.Issues[i].Path < tree.Issues[j].Path
		}
		return tree.Issues[i].Kind < tree.Issues[j].Kind
	})

	tree.Stats.Folders = len(tree.Folders)
	tree.Stats.Files = len(tree.Files)
	tree.Stats.Lines = len(tree.Lines)

	span.SetAttributes(
		attribute.Int("repository.folders", tree.Stats.Folders),
		attribute.Int("repository.files", tree.Stats.Files),
		attribute.Int("repository.lines", tree.Stats.Lines),
	)

	w.logger.Info(ctx, "metadata tree built",
		zap.String("root", root),
		zap.Int("folders", tree.Stats.Folders),
		zap.Int("files", tree.Stats.Files),
		zap.Int("lines", tree.Stats.Lines),
		zap.Int("binary_skipped", tree.Stats.BinarySkipped),
		zap.Int("unreadable", tree.Stats.Unreadable),
		zap.Duration("duration", time.Since(start)),
	)

	return tree, nil
}

// validateRoot cleans the path and checks it is a directory.
func validateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: root path is required", ErrInvalidInput)
	}

	cleaned := filepath.Clean(root)
	info, err := os.Stat(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: root %q: %w", ErrInvalidInput, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: root %q is not a directory", ErrInvalidInput, root)
	}
	return cleaned, nil
}

// visitDir lists dir, records its FolderRecord and recurses into
// sub-directories. Files are queued on jobs. rel is dir relative to the
// root ("" for the root itself).
func (w *Walker) visitDir(ctx context.Context, tree *Tree, dir, rel string, jobs *[]fileJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("%w: cannot list root %q: %w", ErrInvalidInput, dir, err)
		}
		w.recordIssue(ctx, tree, IssueEntryUnreadable, dir, fmt.Errorf("%w: %w", ErrEntryUnreadable, err))
		tree.Stats.Unreadable++
		return nil
	}

	folder := FolderRecord{
		Path:           dir,
		EntryCount:     len(entries),
		ChildFilePaths: []string{},
	}
	if rel != "" {
		folder.Parent = filepath.Dir(dir)
	}

	var subdirs []string
	for _, entry := range entries {
		if sub := w.visitEntry(ctx, tree, &folder, rel, entry, jobs); sub != "" {
			subdirs = append(subdirs, sub)
		}
	}

	sort.Strings(folder.ChildFilePaths)
	tree.Folders[dir] = folder

	for _, sub := range subdirs {
		subRel := filepath.ToSlash(filepath.Join(rel, filepath.Base(sub)))
		if err := w.visitDir(ctx, tree, sub, subRel, jobs); err != nil {
			return err
		}
	}
	return nil
}

// visitEntry files one directory entry into folder and returns its path
// when it is a sub-directory to descend. Regular files are listed in
// ChildFilePaths even when their metadata cannot be read.
func (w *Walker) visitEntry(ctx context.Context, tree *Tree, folder *FolderRecord, rel string, entry fs.DirEntry, jobs *[]fileJob) string {
	path := filepath.Join(folder.Path, entry.Name())
	childRel := filepath.ToSlash(filepath.Join(rel, entry.Name()))

	kind, info, err := classify(path, entry)
	if kind == entryOther {
		return ""
	}
	if w.matcher != nil && w.matcher.Match(childRel, kind == entryDir) {
		tree.Stats.Excluded++
		w.logger.Trace(ctx, "excluded entry", zap.String("path", path))
		return ""
	}

	if kind == entryDir {
		return path
	}
	folder.ChildFilePaths = append(folder.ChildFilePaths, path)
	if err != nil {
		w.recordIssue(ctx, tree, IssueEntryUnreadable, path, fmt.Errorf("%w: %w", ErrEntryUnreadable, err))
		tree.Stats.Unreadable++
		return ""
	}
	*jobs = append(*jobs, fileJob{path: path, info: info})
	return ""
}

type entryKind int

const (
	entryOther entryKind = iota
	entryDir
	entryFile
)

// classify resolves an entry to a directory to descend, a regular file to
// read, or something that is only counted. Symlinked directories are not
// followed; symlinks to regular files are read as files.
func classify(path string, entry fs.DirEntry) (entryKind, fs.FileInfo, error) {
	switch mode := entry.Type(); {
	case mode.IsDir():
		return entryDir, nil, nil
	case mode.IsRegular():
		info, err := entry.Info()
		return entryFile, info, err
	case mode&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			// dangling links and links to directories are only counted
			return entryOther, nil, nil
		}
		return entryFile, info, nil
	default:
		return entryOther, nil, nil
	}
}

// fileResult is what one worker produces for one file.
type fileResult struct {
	file   *FileRecord
	lines  []LineRecord
	issues []Issue
	binary bool
}

// readFiles processes queued files on a bounded worker pool and merges the
// results. Each file owns a disjoint set of keys.
func (w *Walker) readFiles(ctx context.Context, tree *Tree, jobs []fileJob) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)

	var mu sync.Mutex
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := w.processFile(gctx, job)

			mu.Lock()
			defer mu.Unlock()
			w.merge(tree, res)
			return nil
		})
	}
	return g.Wait()
}

func (w *Walker) merge(tree *Tree, res fileResult) {
	tree.Issues = append(tree.Issues, res.issues...)
	for _, is := range res.issues {
		switch is.Kind {
		case IssueEntryUnreadable:
			tree.Stats.Unreadable++
		case IssueBinaryDetection:
			tree.Stats.BinaryCheckFailures++
		case IssueDecodeFallback:
			tree.Stats.DecodeFallbacks++
		}
	}
	if res.binary {
		tree.Stats.BinarySkipped++
	}
	if res.file != nil {
		tree.Files[res.file.Path] = *res.file
	}
	for _, l := range res.lines {
		tree.Lines[l.LineKey()] = l
	}
}

// processFile applies the binary filter, decodes the file and builds its
// line records.
func (w *Walker) processFile(ctx context.Context, job fileJob) fileResult {
	var res fileResult

	binary, err := IsBinaryFile(job.path)
	if err != nil {
		// fail open: an unreadable prefix is treated as text
		issue := Issue{Kind: IssueBinaryDetection, Path: job.path, Err: fmt.Errorf("%w: %w", ErrBinaryDetection, err)}
		res.issues = append(res.issues, issue)
		w.logIssue(ctx, issue)
	}
	if binary {
		res.binary = true
		w.logger.Debug(ctx, "skipping binary file", zap.String("path", job.path))
		return res
	}

	data, err := os.ReadFile(job.path)
	if err != nil {
		issue := Issue{Kind: IssueEntryUnreadable, Path: job.path, Err: fmt.Errorf("%w: %w", ErrEntryUnreadable, err)}
		res.issues = append(res.issues, issue)
		w.logIssue(ctx, issue)
		return res
	}

	content, fellBack := decodeText(data)
	if fellBack {
		issue := Issue{Kind: IssueDecodeFallback, Path: job.path}
		res.issues = append(res.issues, issue)
		w.logIssue(ctx, issue)
	}

	lines := splitLines(content)
	res.file = &FileRecord{
		Path:         job.path,
		Content:      content,
		LastModified: job.info.ModTime(),
		FileType:     filepath.Ext(job.path),
		LineCount:    len(lines),
	}
	res.lines = buildLineRecords(job.path, lines)

	w.logger.Trace(ctx, "file processed", zap.String("path", job.path), zap.Int("lines", len(lines)))
	return res
}

// recordIssue is used from the single-goroutine traversal phase.
func (w *Walker) recordIssue(ctx context.Context, tree *Tree, kind IssueKind, path string, err error) {
	issue := Issue{Kind: kind, Path: path, Err: err}
	tree.Issues = append(tree.Issues, issue)
	w.logIssue(ctx, issue)
}

func (w *Walker) logIssue(ctx context.Context, issue Issue) {
	fields := []zap.Field{zap.String("issue", string(issue.Kind)), zap.String("path", issue.Path)}
	if issue.Err != nil {
		fields = append(fields, zap.Error(issue.Err))
	}

	switch issue.Kind {
	case IssueDecodeFallback:
		w.logger.Debug(ctx, "replaced undecodable bytes", fields...)
	case IssueBinaryDetection:
		w.logger.Warn(ctx, "binary check failed, treating file as text", fields...)
	default:
		if errors.Is(issue.Err, fs.ErrPermission) {
			fields = append(fields, zap.Bool("permission_denied", true))
		}
		w.logger.Warn(ctx, "skipping unreadable entry", fields...)
	}
}
