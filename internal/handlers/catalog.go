package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/adapters"
)

// CatalogHandler serves the control panel's nest/egg/node/allocation
// catalog used to fill in deployment requests.
type CatalogHandler struct {
	panel *adapters.Pterodactyl
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(panel *adapters.Pterodactyl) *CatalogHandler {
	return &CatalogHandler{panel: panel}
}

// Nests lists the panel's nests
// GET /api/pterodactyl/nests
func (h *CatalogHandler) Nests(c *gin.Context) {
	nests, err := h.panel.ListNests(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nests": nests})
}

// Eggs lists one nest's eggs
// GET /api/pterodactyl/nests/:id/eggs
func (h *CatalogHandler) Eggs(c *gin.Context) {
	nestID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Nest id must be numeric",
		})
		return
	}

	eggs, err := h.panel.ListEggs(c.Request.Context(), nestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eggs": eggs})
}

// Nodes lists the panel's nodes
// GET /api/pterodactyl/nodes
func (h *CatalogHandler) Nodes(c *gin.Context) {
	nodes, err := h.panel.ListNodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

// Allocations lists one node's allocations, free ones only by default
// GET /api/pterodactyl/nodes/:id/allocations
func (h *CatalogHandler) Allocations(c *gin.Context) {
	nodeID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Node id must be numeric",
		})
		return
	}

	freeOnly := c.DefaultQuery("free", "true") != "false"
	allocations, err := h.panel.ListAllocations(c.Request.Context(), nodeID, freeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocations": allocations})
}
