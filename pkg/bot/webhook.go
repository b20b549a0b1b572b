package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/efortin/factorio-chill/pkg/config"
	"github.com/efortin/factorio-chill/pkg/operation"
	"github.com/efortin/factorio-chill/pkg/stats"
)

// SecretTokenHeader carries the secret_token set at webhook registration
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookServer receives Telegram updates over HTTP
type WebhookServer struct {
	router     *gin.Engine
	httpServer *http.Server
	ready      atomic.Bool
	logger     *zap.Logger
}

// NewWebhookServer builds the router and HTTP server. The manual operation routes
// are mounted only when an operations token is configured.
func NewWebhookServer(cfg *config.Config, handler UpdateHandler, manager operation.Manager, metrics *stats.MetricsRecorder, logger *zap.Logger) *WebhookServer {
	if metrics == nil {
		metrics = stats.NewMetricsRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &WebhookServer{logger: logger}

	r := gin.New()
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger, metrics))

	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	updates := WebhookHandler(handler, cfg.WebhookSecret, logger)
	r.POST("/", updates)
	if name := strings.Trim(cfg.FunctionName, "/"); name != "" {
		r.POST("/"+name, updates)
	}

	if cfg.OperationsToken != "" && manager != nil {
		operation.NewGinHandler(manager, logger).
			Register(r.Group("/operations", operation.RequireBearer(cfg.OperationsToken)))
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests
func (s *WebhookServer) Handler() http.Handler {
	return s.router
}

// SetReady marks the server ready once the webhook is registered
func (s *WebhookServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start serves until the context is cancelled, then shuts down gracefully
func (s *WebhookServer) Start(ctx context.Context) error {
	s.logger.Info("Starting webhook server", zap.String("address", s.httpServer.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, stopping server")
		return s.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *WebhookServer) Shutdown() error {
	s.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Webhook server stopped")
	return nil
}

func (s *WebhookServer) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *WebhookServer) readyz(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// WebhookHandler authenticates, decodes and dispatches a Telegram update before answering.
// Requests without the registered secret are refused, an empty secret refuses everything.
// Telegram redelivers on non-2xx, so dispatch failures still answer 200.
func WebhookHandler(handler UpdateHandler, secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := loggerFrom(c, logger)

		got := c.GetHeader(SecretTokenHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn("Rejected update with invalid secret token", zap.Bool("header_present", got != ""))
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "invalid secret token",
					"type":    "unauthorized",
				},
			})
			return
		}

		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			log.Warn("Malformed update", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"message": "invalid update body",
					"type":    "invalid_request",
				},
			})
			return
		}

		if err := handler.HandleUpdate(c.Request.Context(), update); err != nil {
			log.Error("Failed to handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
		}
		c.Status(http.StatusOK)
	}
}
