package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/chat"
	"github.com/hunkim/solar-search-vercel/internal/conf"
	"github.com/hunkim/solar-search-vercel/internal/orchestrator"
	apperrors "github.com/hunkim/solar-search-vercel/internal/pkg/errors"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// Server exposes the chat handler over HTTP: a health probe, a synchronous
// webhook endpoint and a streaming SSE endpoint.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	handler *chat.Handler
	logger  *logger.Logger
}

// New builds the HTTP server and registers all routes.
func New(cfg *conf.ServerConfig, h *chat.Handler, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		handler: h,
		logger:  log,
	}
	engine.Use(s.loggerMiddleware())
	s.registerRoutes()

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/webhook", s.handleWebhook)
	s.engine.POST("/chat/stream", s.handleChatStream)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

type webhookResponse struct {
	chat.Reply
	ReferencesText string `json:"references_text,omitempty"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParams))
		return
	}

	if reply, ok := s.handler.HandleCommand(c.Request.Context(), req.Message); ok {
		c.JSON(http.StatusOK, gin.H{"text": reply})
		return
	}

	reply := s.handler.HandleMessage(c.Request.Context(), req.Message, orchestrator.Callbacks{})
	c.JSON(http.StatusOK, webhookResponse{
		Reply:          reply,
		ReferencesText: chat.RenderReferences(reply.References),
	})
}

// handleChatStream answers over SSE. Event order mirrors the orchestration
// lifecycle: search_start, queries, sources_found, then delta events as the
// answer streams, and a final done event with the cited text and references.
func (s *Server) handleChatStream(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParams))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	emit := func(event string, data interface{}) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	cb := orchestrator.Callbacks{
		OnSearchStart: func() {
			emit("search_start", gin.H{})
		},
		OnSearchQueriesGenerated: func(queries []string) {
			emit("queries", gin.H{"queries": queries})
		},
		OnSearchDone: func(sources []websearch.Result) {
			emit("sources_found", gin.H{"count": len(sources), "sources": sources})
		},
		OnUpdate: func(chunk string) {
			emit("delta", gin.H{"text": chunk})
		},
	}

	reply := s.handler.HandleMessage(c.Request.Context(), req.Message, cb)
	emit("done", reply)
}

func (s *Server) respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus(), gin.H{
		"code":    err.Code,
		"message": err.Message,
	})
}

// loggerMiddleware logs one line per request with latency and status.
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("errors", strings.Join(c.Errors.Errors(), "; ")),
		)
	}
}
