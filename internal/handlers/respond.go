package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/middleware"
	"github.com/treestandk/wingman/internal/registry"
	"github.com/treestandk/wingman/internal/wingerr"
)

// respondError renders err with the HTTP status its category maps to.
// Registry misses become 404s like any other not-found.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Deployment not found",
		})
		return
	}

	c.JSON(wingerr.HTTPStatus(err), gin.H{
		"error":   errorToken(err),
		"message": err.Error(),
	})
}

func errorToken(err error) string {
	switch wingerr.CategoryOf(err) {
	case wingerr.CategoryValidation:
		return "validation_error"
	case wingerr.CategoryNotFound:
		return "not_found"
	case wingerr.CategoryConfiguration:
		return "configuration_error"
	case wingerr.CategoryConnectivity:
		return "connectivity_error"
	case wingerr.CategoryServiceAPI:
		return "service_error"
	}
	return "internal_error"
}

// actorFrom names the authenticated caller for audit records.
func actorFrom(c *gin.Context) string {
	if caller, ok := middleware.CallerFrom(c); ok {
		return caller.Username
	}
	return "anonymous"
}
