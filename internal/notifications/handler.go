package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/auth"
	"clinic-portal/clinic-portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service *Service
	sockets *websocket.Manager
	logger  *zap.Logger
}

func NewHandler(service *Service, sockets *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, sockets: sockets, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.GET("/ws", h.Connect)
	}
}

// List handles GET /notifications?limit=
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, err := h.service.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// Connect upgrades to a websocket bound to the caller's user ID
func (h *Handler) Connect(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := h.sockets.HandleConnection(c.Writer, c.Request, userID.String())
	if err != nil {
		if !c.Writer.Written() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
		h.logger.Warn("WebSocket connection rejected",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	h.logger.Debug("WebSocket connected",
		zap.String("user_id", userID.String()),
		zap.String("connection_id", conn.ID))
}
