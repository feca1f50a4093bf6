package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/ignore"
	"github.com/fyrsmithlabs/repoindex/internal/indexer"
	"github.com/fyrsmithlabs/repoindex/internal/watcher"
)

func newCreateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <repo>",
		Short: "Create an empty repository, dropping existing vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.service.CreateRepository(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repository '%s' created with vector size %d\n", args[0], a.embedder.Dimension())
			return nil
		},
	}
}

func newExistsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <repo>",
		Short: "Report whether a repository exists",
		Long:  "Report whether a repository exists. Exits non-zero when it does not.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			exists, err := a.service.RepositoryExists(ctx, args[0])
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("repository '%s' does not exist", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repository '%s' exists.\n", args[0])
			return nil
		},
	}
}

type indexOptions struct {
	exclude        []string
	useIgnoreFiles bool
	watch          bool
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index <repo> <root>",
		Short: "Walk a directory and store its vectors in a repository",
		Long: `Walk a directory and store one vector per folder, file and line in the
named repository, creating it when missing.

With --watch the command keeps running and re-indexes the whole tree after
files stop changing for watch.debounce.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			root, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			req := indexer.IndexRequest{
				Root:            root,
				ExcludePatterns: opts.exclude,
				UseIgnoreFiles:  opts.useIgnoreFiles,
			}
			out := cmd.OutOrStdout()

			run := func(ctx context.Context) error {
				res, err := a.service.IndexRepository(ctx, args[0], req)
				if err != nil {
					return err
				}
				printIndexResult(out, res)
				return nil
			}
			if err := run(ctx); err != nil {
				return err
			}
			if !opts.watch {
				return nil
			}

			var matcher *ignore.Matcher
			patterns := append(append([]string(nil), a.cfg.Index.ExcludePatterns...), opts.exclude...)
			useIgnore := opts.useIgnoreFiles || a.cfg.Index.UseIgnoreFiles
			if len(patterns) > 0 || useIgnore {
				matcher, err = ignore.New(ignore.Options{
					Root:           root,
					Patterns:       patterns,
					UseIgnoreFiles: useIgnore,
					UseProjectFile: useIgnore,
				})
				if err != nil {
					return err
				}
			}

			w, err := watcher.New(watcher.Config{
				Root:     root,
				Debounce: a.cfg.Watch.Debounce.Duration(),
				Matcher:  matcher,
				Logger:   a.logger,
			}, run)
			if err != nil {
				return err
			}
			a.logger.Info(ctx, "watching repository", zap.String("repository", args[0]), zap.String("root", root))
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns to leave out (repeatable)")
	cmd.Flags().BoolVar(&opts.useIgnoreFiles, "ignore-files", false, "honour .gitignore, .repoindexignore and .repoindex.toml")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-index when files change")
	return cmd
}

func printIndexResult(w io.Writer, res *indexer.IndexResult) {
	fmt.Fprintf(w, "%d vectors inserted into '%s'", res.Points, res.Repository)
	if res.Branch != "" {
		fmt.Fprintf(w, " (branch %s)", res.Branch)
	}
	fmt.Fprintf(w, ": %d folders, %d files, %d lines, %d binary skipped, %d unreadable, %d excluded",
		res.Folders, res.Files, res.Lines, res.BinarySkipped, res.Unreadable, res.Excluded)
	if res.Redacted > 0 {
		fmt.Fprintf(w, ", %d records redacted", res.Redacted)
	}
	fmt.Fprintf(w, " in %s\n", res.Duration.Round(time.Millisecond))
}

type searchOptions struct {
	topK   int
	asJSON bool
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <repo> <query>",
		Short: "Search a repository",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			query := strings.Join(args[1:], " ")
			results, err := a.service.Search(ctx, args[0], query, opts.topK)
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{"results": results})
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "maximum results (default index.default_top_k)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	return cmd
}

func printResults(w io.Writer, results []indexer.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	for i, r := range results {
		location := r.Path
		if r.LineNumber > 0 {
			location = fmt.Sprintf("%s:%d", r.Path, r.LineNumber)
		}
		fmt.Fprintf(w, "%2d. %.4f  %-6s %s\n", i+1, r.Score, r.Kind, location)

		switch r.Kind {
		case "line":
			fmt.Fprintf(w, "      %s\n", r.Content)
			for _, c := range r.Context {
				fmt.Fprintf(w, "      %d: %s\n", c.LineNumber, c.Content)
			}
		case "folder":
			fmt.Fprintf(w, "      %s\n", r.Content)
		}
	}
}
