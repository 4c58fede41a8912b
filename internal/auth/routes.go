package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes
func RegisterRoutes(rg *gin.RouterGroup, handler *Handler, requireAuth gin.HandlerFunc) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/token", handler.IssueToken)
		authGroup.POST("/logout", requireAuth, handler.Logout)
		authGroup.GET("/me", requireAuth, handler.Me)
	}
}
