package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repoindex/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the repository tools over MCP on stdio",
		Long: `Serve repository_exists, repository_create, repository_index and
repository_search as MCP tools on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			srv, err := mcp.NewServer(&mcp.Config{
				Name:         "repoindex",
				Version:      version,
				Logger:       a.logger.Underlying().Named("mcp"),
				AllowedRoots: a.cfg.Index.AllowedRoots,
			}, a.service)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
