package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mediaforge/internal/entity"
)

// ListModels returns the model catalog, optionally filtered by type.
func (h *HTTPHandler) ListModels(c *gin.Context) {
	modelType := strings.TrimSpace(c.Query("type"))

	switch modelType {
	case "":
		c.JSON(http.StatusOK, gin.H{"models": h.registry.AllModels()})
	case entity.FileTypeImage, entity.FileTypeVideo:
		c.JSON(http.StatusOK, gin.H{"models": h.registry.ModelsByType(modelType)})
	default:
		BadRequest(c, ErrCodeInvalidRequest, "type must be image or video")
	}
}

// ResolveModelRoute previews where a generation for the given model would be
// served, after credential-based substitution.
func (h *HTTPHandler) ResolveModelRoute(c *gin.Context) {
	modelID := strings.TrimSpace(c.Param("id"))
	if h.registry.GetModelConfig(modelID) == nil {
		NotFound(c, ErrCodeModelNotFound, "unknown model "+modelID)
		return
	}

	c.JSON(http.StatusOK, h.resolver.Resolve(modelID))
}
