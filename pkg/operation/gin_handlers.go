package operation

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinHandler handles manual operation requests using Gin
type GinHandler struct {
	manager Manager
	logger  *zap.Logger
}

// NewGinHandler creates a new Gin operation handler
func NewGinHandler(manager Manager, logger *zap.Logger) *GinHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GinHandler{
		manager: manager,
		logger:  logger,
	}
}

// Register mounts the operation routes on the given group
func (h *GinHandler) Register(group *gin.RouterGroup) {
	group.POST("/start", h.StartHandler)
	group.POST("/stop", h.StopHandler)
}

// StartHandler handles manual start requests
func (h *GinHandler) StartHandler(c *gin.Context) {
	h.logger.Info("Manual start requested", zap.String("remote_addr", c.ClientIP()))

	result, err := h.manager.Start(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to start game server", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": err.Error(),
				"type":    "start_failed",
			},
		})
		return
	}

	response := gin.H{
		"status":   "success",
		"message":  "game server started successfully",
		"replicas": result.Replicas,
		"ips":      result.IPs,
	}
	if result.IPError != nil {
		response["ip_error"] = result.IPError.Error()
	}
	if len(result.MissingIP) > 0 {
		response["nodes_without_ip"] = result.MissingIP
	}
	c.JSON(http.StatusOK, response)
}

// StopHandler handles manual stop requests
func (h *GinHandler) StopHandler(c *gin.Context) {
	h.logger.Info("Manual stop requested", zap.String("remote_addr", c.ClientIP()))

	result, err := h.manager.Stop(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to stop game server", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": err.Error(),
				"type":    "stop_failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "game server stopped successfully",
		"replicas": result.Replicas,
	})
}

// RequireBearer rejects requests whose Authorization header does not carry token
func RequireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "missing or invalid bearer token",
					"type":    "unauthorized",
				},
			})
			return
		}
		c.Next()
	}
}
