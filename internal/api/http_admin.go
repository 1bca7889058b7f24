package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mediaforge/internal/entity"
)

// SweepGenerations runs the stuck-generation recovery sweep. Thresholds are
// optional; zero or negative values fall back to the service defaults.
func (h *HTTPHandler) SweepGenerations(c *gin.Context) {
	var req entity.SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			InvalidPayload(c)
			return
		}
	}

	minAge := time.Duration(req.MinAgeMinutes) * time.Minute
	staleness := time.Duration(req.HeartbeatStaleMinutes) * time.Minute

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := h.generationService.Sweep(ctx, minAge, staleness)
	if err != nil {
		logrus.WithError(err).Error("recovery sweep failed")
		InternalError(c, "recovery sweep failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ApproveOutputRequest toggles the approval flag of an output.
type ApproveOutputRequest struct {
	Approved bool `json:"approved"`
}

// ApproveOutput marks an output approved or unapproved.
func (h *HTTPHandler) ApproveOutput(c *gin.Context) {
	outputID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ApproveOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.UpdateOutput(ctx, outputID, req.Approved); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeOutputNotFound, "output not found")
			return
		}
		logrus.WithError(err).WithField("output_id", outputID).Error("failed to update output")
		InternalError(c, "failed to update output")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": outputID, "approved": req.Approved})
}

// ListPromptTemplates returns prompt templates. Admins may pass
// include_inactive=true to see disabled ones.
func (h *HTTPHandler) ListPromptTemplates(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	templates, err := h.repo.ListPromptTemplates(ctx, includeInactive)
	if err != nil {
		logrus.WithError(err).Error("failed to list prompt templates")
		InternalError(c, "failed to list prompt templates")
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// CreatePromptTemplate creates a prompt template.
func (h *HTTPHandler) CreatePromptTemplate(c *gin.Context) {
	var req entity.CreatePromptTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	template := &entity.DbPromptTemplate{
		Name:     req.Name,
		Template: req.Template,
		IsActive: true,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.CreatePromptTemplate(ctx, template); err != nil {
		logrus.WithError(err).Error("failed to create prompt template")
		InternalError(c, "failed to create prompt template")
		return
	}

	c.JSON(http.StatusCreated, template)
}

// UpdatePromptTemplateRequest is the payload for partial template updates.
type UpdatePromptTemplateRequest struct {
	Name     *string `json:"name"`
	Template *string `json:"template"`
	IsActive *bool   `json:"is_active"`
}

// UpdatePromptTemplate applies a partial update to a prompt template.
func (h *HTTPHandler) UpdatePromptTemplate(c *gin.Context) {
	templateID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdatePromptTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	updates := entity.PromptTemplateUpdates{
		Name:     req.Name,
		Template: req.Template,
		IsActive: req.IsActive,
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.UpdatePromptTemplate(ctx, templateID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeTemplateNotFound, "prompt template not found")
			return
		}
		logrus.WithError(err).WithField("template_id", templateID).Error("failed to update prompt template")
		InternalError(c, "failed to update prompt template")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// DeletePromptTemplate removes a prompt template.
func (h *HTTPHandler) DeletePromptTemplate(c *gin.Context) {
	templateID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeletePromptTemplate(ctx, templateID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeTemplateNotFound, "prompt template not found")
			return
		}
		logrus.WithError(err).WithField("template_id", templateID).Error("failed to delete prompt template")
		InternalError(c, "failed to delete prompt template")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
