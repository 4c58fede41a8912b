package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "auth.identity"

// RequireAuth rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so a "token" query parameter is accepted
// as a fallback.
func RequireAuth(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		id, err := tokens.Parse(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(identityKey, *id)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentIdentity returns the identity stored by RequireAuth.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// CurrentUserID is a shortcut for CurrentIdentity(c).UserID.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := CurrentIdentity(c)
	if !ok {
		return uuid.Nil, false
	}
	return id.UserID, true
}

// SetIdentity stores id on the context. Used by tests and trusted internal callers.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}
