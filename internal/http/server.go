// Package http serves the repository index over a small JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
)

// Indexer is the service the handlers forward to.
type Indexer interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)
	CreateRepository(ctx context.Context, name string) error
	IndexRepository(ctx context.Context, name string, req indexer.IndexRequest) (*indexer.IndexResult, error)
	Search(ctx context.Context, name, query string, topK int) ([]indexer.SearchResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// AllowedRoots restricts root_path for indexing. Empty allows any path.
	AllowedRoots []string
	// Dimension is reported when a repository is created.
	Dimension int
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	indexer Indexer
	logger  *zap.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(idx Indexer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if idx == nil {
		return nil, fmt.Errorf("indexer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8000,
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:    e,
		indexer: idx,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	s.echo.GET("/repo/:name", s.handleExists)
	s.echo.POST("/repo", s.handleCreate)
	s.echo.POST("/insert-vectors/:name", s.handleInsert)
	s.echo.POST("/search/:name", s.handleSearch)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// errorHandler maps service errors onto status codes before echo's
// default handler renders them. Messages of unclassified errors are not
// sent to the client.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			switch {
			case errors.Is(err, indexer.ErrOutsideAllowedRoots):
				he = echo.NewHTTPError(http.StatusForbidden, "root_path is outside the allowed roots")
			case errors.Is(err, indexer.ErrInvalidInput):
				he = echo.NewHTTPError(http.StatusBadRequest, err.Error())
			case errors.Is(err, indexer.ErrRepositoryNotFound):
				he = echo.NewHTTPError(http.StatusNotFound, err.Error())
			default:
				he = echo.NewHTTPError(http.StatusInternalServerError)
			}
			he.Internal = err
		}
		e.DefaultHTTPErrorHandler(he, c)
	}
}
