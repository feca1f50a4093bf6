package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/repoindex/internal/ignore"
	"github.com/fyrsmithlabs/repoindex/internal/repository"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Width(24)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type walkOptions struct {
	format         string
	exclude        []string
	useIgnoreFiles bool
}

// walkIssue is an Issue with its error flattened to text.
type walkIssue struct {
	Kind    repository.IssueKind `json:"kind" yaml:"kind"`
	Path    string               `json:"path" yaml:"path"`
	Message string               `json:"message,omitempty" yaml:"message,omitempty"`
}

// walkOutput is the json/yaml rendering of a tree, with every collection
// sorted by key.
type walkOutput struct {
	Root    string                    `json:"root" yaml:"root"`
	Folders []repository.FolderRecord `json:"folders" yaml:"folders"`
	Files   []repository.FileRecord   `json:"files" yaml:"files"`
	Lines   []repository.LineRecord   `json:"lines" yaml:"lines"`
	Issues  []walkIssue               `json:"issues,omitempty" yaml:"issues,omitempty"`
	Stats   repository.Stats          `json:"stats" yaml:"stats"`
}

func newWalkCmd(flags *globalFlags) *cobra.Command {
	opts := &walkOptions{}
	cmd := &cobra.Command{
		Use:   "walk <root>",
		Short: "Print the metadata tree of a directory without indexing it",
		Long: `Walk a directory and print its folder, file and line records.

Formats:
  summary  counts and issues (default)
  json     every record as JSON
  yaml     every record as YAML`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			patterns := append(append([]string(nil), a.cfg.Index.ExcludePatterns...), opts.exclude...)
			useIgnore := opts.useIgnoreFiles || a.cfg.Index.UseIgnoreFiles

			walkerOpts := []repository.Option{
				repository.WithLogger(a.logger.Named("walker")),
				repository.WithWorkers(a.cfg.Index.Workers),
			}
			if len(patterns) > 0 || useIgnore {
				m, err := ignore.New(ignore.Options{
					Root:           root,
					Patterns:       patterns,
					UseIgnoreFiles: useIgnore,
					UseProjectFile: useIgnore,
				})
				if err != nil {
					return err
				}
				walkerOpts = append(walkerOpts, repository.WithMatcher(m))
			}

			tree, err := repository.NewWalker(walkerOpts...).BuildMetadataTree(ctx, root)
			if err != nil {
				return err
			}
			return writeTree(cmd.OutOrStdout(), tree, opts.format)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "summary", "output format: summary, json or yaml")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns to leave out (repeatable)")
	cmd.Flags().BoolVar(&opts.useIgnoreFiles, "ignore-files", false, "honour .gitignore, .repoindexignore and .repoindex.toml")
	return cmd
}

func writeTree(w io.Writer, tree *repository.Tree, format string) error {
	switch format {
	case "summary", "":
		return writeSummary(w, tree)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newWalkOutput(tree))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newWalkOutput(tree)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (supported: summary, json, yaml)", format)
	}
}

func newWalkOutput(tree *repository.Tree) walkOutput {
	out := walkOutput{
		Root:    tree.Root,
		Folders: []repository.FolderRecord{},
		Files:   []repository.FileRecord{},
		Lines:   []repository.LineRecord{},
		Stats:   tree.Stats,
	}
	for _, rec := range tree.Records() {
		switch r := rec.(type) {
		case repository.FolderRecord:
			out.Folders = append(out.Folders, r)
		case repository.FileRecord:
			out.Files = append(out.Files, r)
		case repository.LineRecord:
			out.Lines = append(out.Lines, r)
		}
	}
	for _, issue := range sortedIssues(tree.Issues) {
		out.Issues = append(out.Issues, walkIssue{Kind: issue.Kind, Path: issue.Path, Message: issue.Message()})
	}
	return out
}

func writeSummary(w io.Writer, tree *repository.Tree) error {
	rows := []struct {
		label string
		value int
	}{
		{"Folders", tree.Stats.Folders},
		{"Files", tree.Stats.Files},
		{"Lines", tree.Stats.Lines},
		{"Binary files skipped", tree.Stats.BinarySkipped},
		{"Unreadable entries", tree.Stats.Unreadable},
		{"Binary check failures", tree.Stats.BinaryCheckFailures},
		{"Decode fallbacks", tree.Stats.DecodeFallbacks},
		{"Excluded entries", tree.Stats.Excluded},
	}

	if _, err := fmt.Fprintln(w, headerStyle.Render(tree.Root)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, labelStyle.Render(row.label)+valueStyle.Render(fmt.Sprint(row.value))); err != nil {
			return err
		}
	}
	for _, issue := range sortedIssues(tree.Issues) {
		line := fmt.Sprintf("%s %s", issue.Kind, issue.Path)
		if msg := issue.Message(); msg != "" {
			line += ": " + msg
		}
		if _, err := fmt.Fprintln(w, dimStyle.Render(line)); err != nil {
			return err
		}
	}
	return nil
}

func sortedIssues(issues []repository.Issue) []repository.Issue {
	out := append([]repository.Issue(nil), issues...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
