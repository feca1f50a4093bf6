// Repoindex indexes the folders, files and lines of a source repository as
// embedding vectors and answers similarity searches against them.
//
// Usage:
//
//	# Serve the HTTP API
//	repoindex serve
//
//	# Index a checkout and query it from the command line
//	repoindex index myrepo /src/myrepo --ignore-files
//	repoindex search myrepo "where is the config loaded"
//
//	# Inspect what would be indexed, without embedding anything
//	repoindex walk /src/myrepo --format summary
//
// Configuration is read from ~/.config/repoindex/config.yaml (or --config)
// and REPOINDEX_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "repoindex",
		Short: "Index repositories for semantic search",
		Long: `repoindex walks a repository, embeds every folder, file and line, and
stores the vectors in a collection named after the repository. Searches
return the closest records, with the neighbouring lines for line hits.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/repoindex/config.yaml)")

	root.AddCommand(
		newServeCmd(flags),
		newWalkCmd(flags),
		newCreateCmd(flags),
		newExistsCmd(flags),
		newIndexCmd(flags),
		newSearchCmd(flags),
		newMCPCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repoindex by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
