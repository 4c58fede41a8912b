package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionReleaser tears down per-user server state on logout.
type SessionReleaser interface {
	Release(userID uuid.UUID)
}

type Handler struct {
	tokens         *TokenManager
	releaser       SessionReleaser
	allowDevTokens bool
	logger         *zap.Logger
}

func NewHandler(tokens *TokenManager, releaser SessionReleaser, allowDevTokens bool, logger *zap.Logger) *Handler {
	return &Handler{
		tokens:         tokens,
		releaser:       releaser,
		allowDevTokens: allowDevTokens,
		logger:         logger,
	}
}

type TokenRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email" binding:"required,email"`
	Role   string    `json:"role" binding:"omitempty,oneof=admin therapist"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Identity  `json:"user"`
}

// IssueToken mints a token without credentials. Only served when dev tokens
// are enabled.
func (h *Handler) IssueToken(c *gin.Context) {
	if !h.allowDevTokens {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := Identity{UserID: req.UserID, Email: req.Email, Role: req.Role}
	if id.UserID == uuid.Nil {
		id.UserID = uuid.New()
	}
	if id.Role == "" {
		id.Role = RoleAdmin
	}

	token, expires, err := h.tokens.Issue(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Issued development token", zap.String("user_id", id.UserID.String()))

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
		User:        id,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if h.releaser != nil {
		h.releaser.Release(userID)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, id)
}
