package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/auth"
	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/middleware"
	"github.com/treestandk/wingman/internal/models"
)

func newAuthEnv(t *testing.T) (*gin.Engine, *auth.TokenManager, *captureSink) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	users := []config.UserCredential{
		{Username: "alice", Role: auth.RoleAdmin, PasswordHash: string(hash)},
	}

	tokens := auth.NewTokenManager("test-secret")
	audits := &captureSink{}
	h := NewAuthHandler(auth.NewAuthenticator(users), tokens, time.Hour, audits)

	router := gin.New()
	router.POST("/api/auth/login", h.Login)
	router.GET("/api/auth/status", middleware.Authentication(tokens), h.Status)
	return router, tokens, audits
}

func TestLoginIssuesToken(t *testing.T) {
	router, tokens, audits := newAuthEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "hunter2",
	})
	requireStatus(t, w, http.StatusOK)

	var resp models.LoginResponse
	decodeJSON(t, w, &resp)
	if resp.Token == "" || resp.Username != "alice" || resp.Role != auth.RoleAdmin {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	claims, err := tokens.Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if len(audits.byAction(audit.ActionLogin)) != 1 {
		t.Error("successful login must be audited")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	router, _, audits := newAuthEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	requireStatus(t, w, http.StatusUnauthorized)

	if len(audits.byAction(audit.ActionLoginFailed)) != 1 {
		t.Error("failed login must be audited")
	}
	if len(audits.byAction(audit.ActionLogin)) != 0 {
		t.Error("failed login must not produce a success event")
	}
}

func TestLoginMissingFields(t *testing.T) {
	router, _, _ := newAuthEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
	})
	requireStatus(t, w, http.StatusBadRequest)
}

func TestAuthStatusReportsCaller(t *testing.T) {
	router, tokens, _ := newAuthEnv(t)

	token, _, err := tokens.Issue("alice", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := doJSON(t, router, http.MethodGet, "/api/auth/status", nil)
	requireStatus(t, req, http.StatusUnauthorized)

	w := doAuthedJSON(t, router, http.MethodGet, "/api/auth/status", nil, token)
	requireStatus(t, w, http.StatusOK)

	var resp struct {
		Authenticated bool `json:"authenticated"`
		User          struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	decodeJSON(t, w, &resp)
	if !resp.Authenticated || resp.User.Username != "alice" || resp.User.Role != auth.RoleAdmin {
		t.Errorf("unexpected status body: %+v", resp)
	}
}
