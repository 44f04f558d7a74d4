// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

// Pipeline is the subset of the service the HTTP layer drives.
type Pipeline interface {
	Ingest(ctx context.Context, docs []domain.Document) (*service.IngestResult, error)
	Ask(ctx context.Context, question string) (*service.Answer, error)
	IndexStatus(ctx context.Context) service.IndexStatus
}

type Server struct {
	cfg      config.ServerConfig
	pipeline Pipeline
	logger   *slog.Logger
	engine   *gin.Engine
}

func New(p Pipeline, cfg config.ServerConfig, serviceName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		logger:   logger.With("component", "server"),
		engine:   gin.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware(serviceName))
	s.engine.Use(RequestIDMiddleware())
	s.engine.Use(LoggingMiddleware(s.logger))
	s.engine.Use(corsMiddleware(cfg.CORSOrigins))
	s.engine.Use(RateLimitMiddleware(newIPLimiter(cfg.RateLimitPerSec, cfg.RateBurst)))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndexPage)
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/", s.handleUpload)
	s.engine.POST("/upload", s.handleUpload)
	s.engine.POST("/ask", s.handleAsk)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server exited")
	return nil
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), time.Duration(s.cfg.RequestTimeout)*time.Second)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
