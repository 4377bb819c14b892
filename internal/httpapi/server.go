// Package httpapi exposes the indexing and retrieval pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/composer"
	"github.com/Galitein/Ai1st-ai/internal/indexer"
	"github.com/Galitein/Ai1st-ai/internal/loader"
	"github.com/Galitein/Ai1st-ai/internal/retriever"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// SearchLimit and SearchThreshold are the deployment's retrieval
	// defaults, applied when a search or chat request omits them. Zero
	// values fall through to the retriever's built-in defaults.
	SearchLimit     int
	SearchThreshold float32
}

// Server wires the loaders, indexer, retriever, and composer behind the
// HTTP API.
type Server struct {
	echo      *echo.Echo
	loaders   loader.Registry
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	composer  *composer.Composer
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the HTTP server. The composer may be nil, which
// disables the chat endpoint.
func NewServer(loaders loader.Registry, ix *indexer.Indexer, rt *retriever.Retriever, cp *composer.Composer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ix == nil {
		return nil, fmt.Errorf("indexer cannot be nil")
	}
	if rt == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

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

	s := &Server{
		echo:      e,
		loaders:   loaders,
		indexer:   ix,
		retriever: rt,
		composer:  cp,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/index", s.handleIndex)
	v1.DELETE("/files", s.handleDeleteFiles)
	v1.POST("/search", s.handleSearch)
	v1.POST("/chat", s.handleChat)
	v1.DELETE("/tenants/:ait_id", s.handleDeleteTenant)
}

// IndexRequest is the request body for POST /api/v1/index.
type IndexRequest struct {
	AITID       string `json:"ait_id"`
	Destination string `json:"destination"`
	Type        string `json:"type"`

	FileNames []string `json:"file_names,omitempty"`
	URLs      []string `json:"urls,omitempty"`

	Trello *struct {
		Key   string `json:"key"`
		Token string `json:"token"`
	} `json:"trello,omitempty"`

	Messages []struct {
		ID      string    `json:"id"`
		Subject string    `json:"subject"`
		From    string    `json:"from"`
		To      string    `json:"to"`
		Date    time.Time `json:"date"`
		Body    string    `json:"body"`
	} `json:"messages,omitempty"`
}

// IndexResponse is the response body for POST /api/v1/index and
// DELETE /api/v1/files.
type IndexResponse struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Result  indexer.Result `json:"result"`
}

// handleIndex runs a loader pass followed by an indexing run.
func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AITID == "" || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ait_id and type fields are required")
	}

	l, err := s.loaders.For(loader.Destination(req.Destination))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	batch, err := l.Load(ctx, s.loadRequest(req))
	if err != nil {
		if errors.Is(err, loader.ErrNoDocuments) {
			return c.JSON(http.StatusNotFound, IndexResponse{Status: false, Message: "no documents loaded"})
		}
		s.logger.Error("load failed",
			zap.String("ait_id", req.AITID),
			zap.String("destination", req.Destination),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadGateway, "loading documents failed")
	}

	result, err := s.indexer.Index(ctx, batch)
	if err != nil {
		s.logger.Error("indexing failed",
			zap.String("ait_id", req.AITID),
			zap.String("tag", req.Type),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "indexing failed")
	}
	return c.JSON(http.StatusOK, IndexResponse{Status: true, Message: result.Message(), Result: result})
}

// loadRequest maps the HTTP body onto a loader request.
func (s *Server) loadRequest(req IndexRequest) loader.Request {
	out := loader.Request{
		AITID:     req.AITID,
		Tag:       req.Type,
		FileNames: req.FileNames,
		URLs:      req.URLs,
	}
	if req.Trello != nil {
		out.Trello = &loader.TrelloAuth{Key: req.Trello.Key, Token: req.Trello.Token}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, loader.EmailMessage{
			ID:      m.ID,
			Subject: m.Subject,
			From:    m.From,
			To:      m.To,
			Date:    m.Date,
			Body:    m.Body,
		})
	}
	return out
}

// DeleteFilesRequest is the request body for DELETE /api/v1/files.
type DeleteFilesRequest struct {
	AITID     string   `json:"ait_id"`
	Type      string   `json:"type"`
	FileNames []string `json:"file_names"`
}

// handleDeleteFiles removes every chunk of the named files.
func (s *Server) handleDeleteFiles(c echo.Context) error {
	var req DeleteFilesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AITID == "" || req.Type == "" || len(req.FileNames) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ait_id, type, and file_names fields are required")
	}

	result, err := s.indexer.DeleteFiles(c.Request().Context(), req.AITID, req.Type, req.FileNames)
	if err != nil {
		s.logger.Error("file deletion failed",
			zap.String("ait_id", req.AITID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "deleting file index failed")
	}
	msg := fmt.Sprintf("deleted %d chunks", result.NumDeleted)
	return c.JSON(http.StatusOK, IndexResponse{Status: true, Message: msg, Result: result})
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	AITID     string  `json:"ait_id"`
	Query     string  `json:"query"`
	Type      string  `json:"type"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float32 `json:"threshold,omitempty"`
}

// searchDefaults fills omitted per-request retrieval knobs from the
// server configuration.
func (s *Server) searchDefaults(limit int, threshold float32) (int, float32) {
	if limit == 0 {
		limit = s.config.SearchLimit
	}
	if threshold == 0 {
		threshold = s.config.SearchThreshold
	}
	return limit, threshold
}

// handleSearch runs one retrieval.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AITID == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ait_id and query fields are required")
	}

	limit, threshold := s.searchDefaults(req.Limit, req.Threshold)
	resp, err := s.retriever.Search(c.Request().Context(), retriever.Query{
		AITID:     req.AITID,
		Text:      req.Query,
		Tag:       req.Type,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		s.logger.Error("search failed",
			zap.String("ait_id", req.AITID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	AITID     string   `json:"ait_id"`
	Query     string   `json:"query"`
	Types     []string `json:"types"`
	Limit     int      `json:"limit,omitempty"`
	Threshold float32  `json:"threshold,omitempty"`
}

// handleChat answers a question grounded in the tenant's collections.
func (s *Server) handleChat(c echo.Context) error {
	if s.composer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "chat is not configured")
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AITID == "" || req.Query == "" || len(req.Types) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ait_id, query, and types fields are required")
	}

	limit, threshold := s.searchDefaults(req.Limit, req.Threshold)
	answer, err := s.composer.Compose(c.Request().Context(), composer.Request{
		AITID:     req.AITID,
		Query:     req.Query,
		Tags:      req.Types,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		s.logger.Error("chat failed",
			zap.String("ait_id", req.AITID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "chat failed")
	}
	return c.JSON(http.StatusOK, answer)
}

// StatusResponse is the body for simple status answers.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// handleDeleteTenant drops a tenant's collection and ledger namespace.
func (s *Server) handleDeleteTenant(c echo.Context) error {
	aitID := c.Param("ait_id")
	if aitID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ait_id is required")
	}

	if err := s.indexer.DeleteTenant(c.Request().Context(), aitID); err != nil {
		s.logger.Error("tenant deletion failed",
			zap.String("ait_id", aitID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "deleting tenant failed")
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: true, Message: "tenant data deleted"})
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
