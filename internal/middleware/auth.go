package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/auth"
	"github.com/treestandk/wingman/internal/logger"
)

const callerKey = "caller"

// Authentication validates the bearer token and stores the caller
// identity in the request context for handlers and gates downstream.
func Authentication(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid authorization header",
			})
			return
		}

		claims, err := tokens.Verify(authHeader[len(prefix):])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: token expired")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "token_expired",
					"message": "Token has expired",
				})
				return
			}
			logger.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Authentication failed: invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Token is not valid",
			})
			return
		}

		c.Set(callerKey, auth.Caller{Username: claims.Username, Role: claims.Role})
		c.Next()
	}
}

// CallerFrom returns the authenticated caller stored by Authentication.
func CallerFrom(c *gin.Context) (auth.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return auth.Caller{}, false
	}
	caller, ok := v.(auth.Caller)
	return caller, ok
}

// RequireAction rejects the request unless the gate allows the caller to
// perform action.
func RequireAction(gate auth.Gate, action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "No authenticated caller",
			})
			return
		}
		if !gate.Allow(caller, action) {
			logger.WithFields(map[string]interface{}{
				"username": caller.Username,
				"role":     caller.Role,
				"action":   string(action),
				"path":     c.Request.URL.Path,
			}).Warn("Authorization denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("Role %s may not %s", caller.Role, action),
			})
			return
		}
		c.Next()
	}
}
