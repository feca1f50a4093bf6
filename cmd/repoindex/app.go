package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/events"
	"github.com/fyrsmithlabs/repoindex/internal/indexer"
	"github.com/fyrsmithlabs/repoindex/internal/logging"
	"github.com/fyrsmithlabs/repoindex/internal/secrets"
	"github.com/fyrsmithlabs/repoindex/internal/telemetry"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

// appOptions selects how much of the stack a command needs.
type appOptions struct {
	// stdoutLogs writes logs to stdout; otherwise they go to stderr so
	// command output and the MCP transport stay clean.
	stdoutLogs bool
	// service builds the embedder, vector store and indexer.
	service bool
}

// app holds the dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  *prometheus.Registry

	embedder embeddings.Provider
	store    vectorstore.Store
	events   events.Publisher
	service  *indexer.Service
}

// newApp loads configuration and initializes dependencies in order:
//  1. configuration
//  2. logger and telemetry
//  3. embedding provider (downloading the ONNX runtime for fastembed)
//  4. vector store, secret scrubber, event publisher and indexer service
func newApp(ctx context.Context, flags *globalFlags, opts appOptions) (_ *app, err error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Output.Stderr = !opts.stdoutLogs
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if degraded, terr := a.telemetry.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(terr))
	}

	if !opts.service {
		return a, nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	embedCfg := embeddings.ConfigFromSettings(cfg.Embeddings)
	if embedCfg.Provider == "" || embedCfg.Provider == embeddings.ProviderFastEmbed {
		path, downloaded, err := embeddings.EnsureONNXRuntime(ctx)
		if err != nil {
			return nil, err
		}
		logger.Debug(ctx, "onnx runtime ready", zap.String("path", path), zap.Bool("downloaded", downloaded))
	}
	a.embedder, err = embeddings.NewProvider(embedCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	store, err := vectorstore.NewStore(cfg, logger.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}
	a.store = vectorstore.NewInstrumentedStore(store, a.registry)

	scrubber, err := secrets.New(secrets.FromSettings(cfg.Secrets))
	if err != nil {
		return nil, fmt.Errorf("initializing secret scrubber: %w", err)
	}

	a.events, err = events.New(events.Config{
		URL:           cfg.Events.URL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
		Timeout:       cfg.Events.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting event publisher: %w", err)
	}

	a.service, err = indexer.NewService(
		indexer.ConfigFromSettings(cfg.Index),
		a.store,
		a.embedder,
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithScrubber(scrubber),
		indexer.WithMetrics(indexer.NewMetrics(a.registry)),
		indexer.WithEvents(a.events),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing indexer: %w", err)
	}

	logger.Info(ctx, "dependencies initialized",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", a.embedder.Dimension()),
		zap.Bool("secrets", scrubber.Enabled()),
		zap.Bool("events", cfg.Events.URL != ""))
	return a, nil
}

// close releases everything newApp created, in reverse order.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}
