package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/repoindex/internal/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API until interrupted.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /repo/:name
  POST /repo                 {"repo_name": "..."}
  POST /insert-vectors/:name {"root_path": "...", "exclude_patterns": [...], "use_ignore_files": true}
  POST /search/:name?query=...&top_k=20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{stdoutLogs: true, service: true})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return runServer(ctx, a)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// runServer starts the HTTP server and blocks until ctx is cancelled, then
// shuts down within server.shutdown_timeout.
func runServer(ctx context.Context, a *app) error {
	srv, err := httpserver.NewServer(a.service, a.logger.Underlying().Named("http"), &httpserver.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		AllowedRoots: a.cfg.Index.AllowedRoots,
		Dimension:    a.embedder.Dimension(),
		Gatherer:     a.registry,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "received shutdown signal, shutting down gracefully",
		zap.Duration("timeout", a.cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
