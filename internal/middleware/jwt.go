package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"blogauth/internal/apperr"
	"blogauth/internal/token"
)

// CtxUserUUID is the gin context key holding the authenticated caller.
const CtxUserUUID = "user_uuid"

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": msg,
		"error":   apperr.KindUnauthorized.String(),
	})
}

// JWT requires "Authorization: Bearer <token>" and stores the token's
// subject on the context.
func JWT(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if auth == "" {
			unauthorized(c, "authorization required")
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			unauthorized(c, "invalid authorization header")
			return
		}
		claims, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(CtxUserUUID, claims.Subject)
		c.Next()
	}
}

// UserUUID returns the authenticated caller, or "" outside JWT routes.
func UserUUID(c *gin.Context) string {
	return c.GetString(CtxUserUUID)
}
