package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/templates"
)

// TemplateHandler handles deployment template requests
type TemplateHandler struct {
	store *templates.Store
	audit audit.Sink
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(store *templates.Store, sink audit.Sink) *TemplateHandler {
	return &TemplateHandler{
		store: store,
		audit: sink,
	}
}

// List returns every saved template
// GET /api/templates
func (h *TemplateHandler) List(c *gin.Context) {
	list, err := h.store.List()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TemplateListResponse{
		Templates: list,
		Total:     len(list),
	})
}

// Get returns one template by name
// GET /api/templates/:name
func (h *TemplateHandler) Get(c *gin.Context) {
	tmpl, err := h.store.Get(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// Save stores a template under its name, overwriting any previous version
// POST /api/templates
func (h *TemplateHandler) Save(c *gin.Context) {
	var tmpl models.Template
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if err := h.store.Save(tmpl.Name, &tmpl); err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.NewEvent(audit.ActionTemplateSave, actorFrom(c), c.ClientIP(), map[string]interface{}{
		"template": tmpl.Name,
	}))

	c.JSON(http.StatusCreated, tmpl)
}
