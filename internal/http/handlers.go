package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleExists(c echo.Context) error {
	name := c.Param("name")
	exists, err := s.indexer.RepositoryExists(c.Request().Context(), name)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Repository '%s' exists.", name)
	if !exists {
		msg = fmt.Sprintf("Repository '%s' does not exist.", name)
	}
	return c.JSON(http.StatusOK, ExistsResponse{Message: msg, Exists: exists})
}

func (s *Server) handleCreate(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_name field is required")
	}

	if err := s.indexer.CreateRepository(c.Request().Context(), req.RepoName); err != nil {
		return err
	}

	msg := fmt.Sprintf("Repository '%s' created", req.RepoName)
	if s.config.Dimension > 0 {
		msg = fmt.Sprintf("%s with vector size %d", msg, s.config.Dimension)
	}
	return c.JSON(http.StatusOK, CreateResponse{Message: msg, Dimension: s.config.Dimension})
}

func (s *Server) handleInsert(c echo.Context) error {
	name := c.Param("name")

	var req InsertRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid insert request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RootPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "root_path field is required")
	}
	root, err := indexer.ResolveRoot(req.RootPath, s.config.AllowedRoots)
	if err != nil {
		s.logger.Warn("root_path rejected", zap.String("root_path", req.RootPath), zap.Error(err))
		return err
	}

	res, err := s.indexer.IndexRepository(c.Request().Context(), name, indexer.IndexRequest{
		Root:            root,
		ExcludePatterns: req.ExcludePatterns,
		UseIgnoreFiles:  req.UseIgnoreFiles,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InsertResponse{
		Message: fmt.Sprintf("%d vectors inserted into '%s'", res.Points, name),
		Result:  res,
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	name := c.Param("name")

	var body SearchRequest
	if c.Request().ContentLength > 0 {
		if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	query := c.QueryParam("query")
	if query == "" {
		query = body.Query
	}
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	topK := body.TopK
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be an integer")
		}
		topK = n
	}

	results, err := s.indexer.Search(c.Request().Context(), name, query, topK)
	if err != nil {
		return err
	}
	if results == nil {
		results = []indexer.SearchResult{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}
