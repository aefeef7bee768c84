// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Ingester runs document ingestion. Implemented by the ingest service.
type Ingester interface {
	Ingest(ctx context.Context, text, sourceFilename string) (*ingest.Result, error)
}

// Answerer produces answers and raw retrieval results. Implemented by
// the rag service.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Response, error)
	Retrieve(ctx context.Context, query string, limit int, sourceFilename string) ([]vectorstore.SearchResult, error)
}

// HealthChecker probes the vector store connection.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxUploadBytes bounds document upload size.
	MaxUploadBytes int64
}

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo     *echo.Echo
	ingester Ingester
	answerer Answerer
	health   HealthChecker
	sessions *chat.SessionStore
	logger   *logging.Logger
	config   *Config
}

// NewServer creates the HTTP server.
func NewServer(ingester Ingester, answerer Answerer, health HealthChecker, sessions *chat.SessionStore, logger *logging.Logger, cfg *Config) (*Server, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if health == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}
	if sessions == nil {
		sessions = chat.NewSessionStore()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg == nil {
		cfg = &Config{
			Host:           "localhost",
			Port:           8080,
			MaxUploadBytes: 20 << 20,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Carry the request id into the request context so service
			// logs correlate with the access log.
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		ingester: ingester,
		answerer: answerer,
		health:   health,
		sessions: sessions,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngestDocument,
		middleware.BodyLimit(fmt.Sprintf("%d", s.config.MaxUploadBytes)))
	v1.POST("/chat", s.handleChat)
	v1.POST("/search", s.handleSearch)
}

// handleHealth probes the vector store connection.
func (s *Server) handleHealth(c echo.Context) error {
	if err := s.health.Health(c.Request().Context()); err != nil {
		s.logger.Warn(c.Request().Context(), "health probe failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngestDocument accepts a multipart upload, extracts its text, and
// runs it through the ingestion pipeline.
func (s *Server) handleIngestDocument(c echo.Context) error {
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded file is empty")
	}

	text, err := extract.Text(data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		}
		s.logger.Warn(ctx, "text extraction failed",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "cannot extract text from document")
	}

	result, err := s.ingester.Ingest(ctx, text, fileHeader.Filename)
	if err != nil {
		s.logger.Error(ctx, "ingestion failed",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "ingestion failed")
	}

	return c.JSON(http.StatusOK, IngestResponse{
		Status:  string(result.Status),
		Chunks:  result.Chunks,
		Stored:  result.Stored,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	})
}

// handleChat answers a question, optionally scoped to an ingested
// document and optionally within a named session.
func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var history *chat.History
	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
		history = s.sessions.Get(req.SessionID)
	} else {
		history = chat.NewHistory()
	}

	resp, err := s.answerer.Answer(ctx, rag.Request{
		Question:       req.Question,
		Backend:        req.Backend,
		Temperature:    req.Temperature,
		SourceFilename: req.SourceFilename,
		History:        history,
	})
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrBlankQuestion):
			return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
		case errors.Is(err, chat.ErrUnknownBackend):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			s.logger.Error(ctx, "answer failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "answer failed")
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Answer:    resp.Answer,
		Retrieved: resp.Retrieved,
	})
}

// handleSearch runs a raw similarity search for a query, bypassing the
// rewrite and augmentation stages. Useful for inspecting what retrieval
// would feed a chat prompt.
func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	results, err := s.answerer.Retrieve(ctx, req.Query, req.Limit, req.SourceFilename)
	if err != nil {
		if errors.Is(err, rag.ErrBlankQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
		}
		s.logger.Error(ctx, "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "search failed")
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			ID:             r.ID,
			Score:          r.Score,
			Text:           r.Text,
			SourceFilename: r.SourceFilename,
		})
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: hits})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the echo engine for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
