// Package server exposes the HTTP surface: comment analysis, code
// generation, the OpenAI-compatible chat proxy, reports, and
// operational probes.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/echohq/echo-agent/internal/agent"
	"github.com/echohq/echo-agent/internal/analysis"
	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/logging"
	"github.com/echohq/echo-agent/internal/storage"
)

// Server wires the pipeline components behind gin.
type Server struct {
	store        storage.Store
	svc          *llm.Service
	encoder      llm.Encoder
	worker       *analysis.Worker
	orchestrator *agent.Orchestrator
	ring         *logging.Ring
	logger       *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Config holds server tuning.
type Config struct {
	Addr string

	// GenerateRPM caps per-client /generate calls per minute.
	GenerateRPM int
}

// New assembles the router. Any component may be nil-equivalent (no
// backend, no orchestrator); the affected endpoints then answer 503.
func New(cfg Config, store storage.Store, svc *llm.Service, encoder llm.Encoder, worker *analysis.Worker, orchestrator *agent.Orchestrator, ring *logging.Ring, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		store:        store,
		svc:          svc,
		encoder:      encoder,
		worker:       worker,
		orchestrator: orchestrator,
		ring:         ring,
		logger:       logger.With("component", "server"),
		engine:       engine,
	}

	rpm := cfg.GenerateRPM
	if rpm <= 0 {
		rpm = 6
	}
	limiter := newIPLimiter(rpm)

	engine.GET("/health", s.handleHealth)
	engine.GET("/logs", s.handleLogs)
	engine.POST("/embed", s.handleEmbed)
	engine.POST("/analyze_comment/:id", s.handleAnalyzeComment)
	engine.POST("/generate", limiter.middleware(), s.handleGenerate)
	engine.POST("/generate_report", s.handleGenerateReport)
	engine.POST("/top_comment", s.handleTopComment)
	engine.POST("/v1/chat/completions", s.handleChatCompletions)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
