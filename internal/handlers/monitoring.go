package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/orchestrator"
)

// MonitoringHandler serves aggregate deployment statistics
type MonitoringHandler struct {
	orch *orchestrator.Orchestrator
}

// NewMonitoringHandler creates a new monitoring handler
func NewMonitoringHandler(orch *orchestrator.Orchestrator) *MonitoringHandler {
	return &MonitoringHandler{orch: orch}
}

// Stats returns deployment counts by status
// GET /api/monitoring/stats
func (h *MonitoringHandler) Stats(c *gin.Context) {
	stats, err := h.orch.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
