package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/auth"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/middleware"
	"github.com/treestandk/wingman/internal/models"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	authenticator *auth.Authenticator
	tokens        *auth.TokenManager
	tokenTTL      time.Duration
	audit         audit.Sink
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authenticator *auth.Authenticator, tokens *auth.TokenManager, tokenTTL time.Duration, sink audit.Sink) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		tokens:        tokens,
		tokenTTL:      tokenTTL,
		audit:         sink,
	}
}

// Login verifies credentials and issues a session token
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Username and password required",
		})
		return
	}

	caller, err := h.authenticator.Authenticate(req.Username, req.Password)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"username": req.Username,
			"ip":       c.ClientIP(),
		}).Warn("Login failed")
		h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionLoginFailed, req.Username, c.ClientIP(), nil))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": "Invalid username or password",
		})
		return
	}

	token, expiresAt, err := h.tokens.Issue(caller.Username, caller.Role, h.tokenTTL)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	logger.WithFields(map[string]interface{}{
		"username": caller.Username,
		"role":     caller.Role,
	}).Info("User logged in")
	h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionLogin, caller.Username, c.ClientIP(), map[string]interface{}{
		"role": caller.Role,
	}))

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		Username:  caller.Username,
		Role:      caller.Role,
		ExpiresAt: expiresAt,
	})
}

// Status reports the authenticated caller's identity
// GET /api/auth/status
func (h *AuthHandler) Status(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": gin.H{
			"username": caller.Username,
			"role":     caller.Role,
		},
	})
}
