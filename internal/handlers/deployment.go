package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/orchestrator"
)

// DeploymentHandler handles deployment lifecycle requests
type DeploymentHandler struct {
	orch  *orchestrator.Orchestrator
	audit audit.Sink
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(orch *orchestrator.Orchestrator, sink audit.Sink) *DeploymentHandler {
	return &DeploymentHandler{
		orch:  orch,
		audit: sink,
	}
}

// Deploy accepts a deployment request and starts it in the background
// POST /api/deploy
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	var req models.DeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	deployment, err := h.orch.Start(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionDeploy, actorFrom(c), c.ClientIP(), map[string]interface{}{
		"deployment_id": deployment.ID,
		"subdomain":     req.Subdomain,
		"server_ip":     req.ServerIP,
		"game_port":     req.GamePort,
	}))

	c.JSON(http.StatusAccepted, models.StartDeploymentResponse{
		DeploymentID: deployment.ID,
		Status:       deployment.Status,
		Message:      "Deployment started",
	})
}

// Status returns one deployment's full record
// GET /api/status/:id
func (h *DeploymentHandler) Status(c *gin.Context) {
	deployment, err := h.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployment.ToResponse())
}

// List returns every known deployment
// GET /api/deployments
func (h *DeploymentHandler) List(c *gin.Context) {
	deployments, err := h.orch.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.DeploymentResponse, 0, len(deployments))
	for _, d := range deployments {
		responses = append(responses, d.ToResponse())
	}

	c.JSON(http.StatusOK, models.DeploymentListResponse{
		Deployments: responses,
		Total:       len(responses),
	})
}

// Logs returns a deployment's log trail as display lines
// GET /api/logs/:id
func (h *DeploymentHandler) Logs(c *gin.Context) {
	deployment, err := h.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LogsResponse{
		DeploymentID: deployment.ID,
		Logs:         deployment.FormatLogs(),
	})
}

// Rollback compensates a finished deployment's provisioned resources
// POST /api/rollback/:id
func (h *DeploymentHandler) Rollback(c *gin.Context) {
	id := c.Param("id")
	deployment, compensations, err := h.orch.Rollback(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionRollback, actorFrom(c), c.ClientIP(), map[string]interface{}{
		"deployment_id": id,
		"compensations": len(compensations),
	}))

	c.JSON(http.StatusOK, models.RollbackResponse{
		DeploymentID:  deployment.ID,
		Status:        deployment.Status,
		Compensations: compensations,
	})
}
