package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

// ConfigHandler exposes the resolved service configuration, with secrets
// masked, and on-demand connectivity probes.
type ConfigHandler struct {
	cfg   *config.Config
	stack []adapters.Adapter
	audit audit.Sink
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, stack []adapters.Adapter, sink audit.Sink) *ConfigHandler {
	return &ConfigHandler{
		cfg:   cfg,
		stack: stack,
		audit: sink,
	}
}

// View returns the masked service configuration
// GET /api/config
func (h *ConfigHandler) View(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": h.cfg.Masked()})
}

// Validate reports configuration completeness per service
// POST /api/config/validate
func (h *ConfigHandler) Validate(c *gin.Context) {
	results := make([]models.ServiceValidation, 0, len(h.stack))
	for _, a := range h.stack {
		missing := h.cfg.ValidateService(a.Name())
		results = append(results, models.ServiceValidation{
			Service: a.Name(),
			Valid:   len(missing) == 0,
			Missing: missing,
		})
	}
	c.JSON(http.StatusOK, gin.H{"services": results})
}

// Test probes every configured service and reports reachability
// POST /api/config/test
func (h *ConfigHandler) Test(c *gin.Context) {
	results := make([]models.ConnectivityResult, 0, len(h.stack))
	for _, a := range h.stack {
		if !a.IsConfigured() {
			results = append(results, models.ConnectivityResult{
				Service: a.Name(),
				Success: false,
				Message: "service not configured",
				Code:    wingerr.CodeConfig,
			})
			continue
		}

		start := time.Now()
		outcome := a.TestConnectivity(c.Request.Context())
		result := models.ConnectivityResult{
			Service:   a.Name(),
			Success:   outcome.Success,
			Message:   outcome.Message,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if !outcome.Success && outcome.Err != nil {
			result.Message = outcome.Err.Error()
			if werr, ok := wingerr.As(outcome.Err); ok {
				result.Code = werr.Code
			}
		}
		results = append(results, result)
	}

	h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionConfigTest, actorFrom(c), c.ClientIP(), nil))

	c.JSON(http.StatusOK, gin.H{"results": results})
}
