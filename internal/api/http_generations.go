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
	"mediaforge/internal/provider"
	"mediaforge/internal/service"
)

// CreateGeneration accepts a generation request for a session and hands it to
// the asynchronous processor. It answers 202 before any provider work starts.
func (h *HTTPHandler) CreateGeneration(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req entity.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	session, ok := h.ownedSession(c, ctx, sessionID)
	if !ok {
		return
	}

	generation, err := h.generationService.Create(ctx, session.UserID, session.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrEmptyPrompt):
			MissingField(c, "prompt")
		default:
			logrus.WithError(err).Error("failed to create generation")
			InternalError(c, "failed to create generation")
		}
		return
	}

	c.JSON(http.StatusAccepted, generation)
}

// GetGeneration returns a generation the user owns, outputs included.
func (h *HTTPHandler) GetGeneration(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	generation, ok := h.ownedGeneration(c, ctx)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, generation)
}

// ListGenerations returns a filtered, paginated listing. Regular users only
// see their own generations; admins may pass all=true to list everyone's.
func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var query entity.GenerationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		InvalidPayload(c)
		return
	}

	query.UserID = user.ID
	if user.IsAdmin() && c.Query("all") == "true" {
		query.IncludeAll = true
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	generations, meta, err := h.repo.ListGenerations(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list generations")
		InternalError(c, "failed to list generations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": generations,
		"meta":        meta,
	})
}

// ListSessionGenerations returns the generations of one session the user
// owns, newest first.
func (h *HTTPHandler) ListSessionGenerations(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var query entity.GenerationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	session, ok := h.ownedSession(c, ctx, sessionID)
	if !ok {
		return
	}

	query.UserID = session.UserID
	query.SessionID = session.ID

	generations, meta, err := h.repo.ListGenerations(ctx, &query)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to list session generations")
		InternalError(c, "failed to list generations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": generations,
		"meta":        meta,
	})
}

// DeleteGeneration removes a failed generation and its outputs. Generations
// still in flight or completed are kept.
func (h *HTTPHandler) DeleteGeneration(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	generation, ok := h.ownedGeneration(c, ctx)
	if !ok {
		return
	}

	if generation.Status != entity.GenerationStatusFailed {
		BadRequest(c, ErrCodeGenerationActive, "only failed generations can be deleted")
		return
	}

	if err := h.repo.DeleteGeneration(ctx, generation.ID); err != nil {
		logrus.WithError(err).WithField("generation_id", generation.ID).Error("failed to delete generation")
		InternalError(c, "failed to delete generation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RetryGeneration resets a failed generation and re-dispatches it.
func (h *HTTPHandler) RetryGeneration(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	generation, ok := h.ownedGeneration(c, ctx)
	if !ok {
		return
	}

	retried, err := h.generationService.Retry(ctx, generation.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationNotFound):
			NotFound(c, ErrCodeGenerationNotFound, "generation not found")
		case errors.Is(err, service.ErrNotRetryable):
			BadRequest(c, ErrCodeNotRetryable, "generation is not in a retryable state")
		default:
			logrus.WithError(err).WithField("generation_id", generation.ID).Error("failed to retry generation")
			InternalError(c, "failed to retry generation")
		}
		return
	}

	c.JSON(http.StatusAccepted, retried)
}

// ProcessGeneration is the internal endpoint the dispatcher posts to. It runs
// the full processing pipeline synchronously. Processing failures are part of
// the result body, not HTTP errors, so the dispatcher never retries work that
// already reached a verdict.
func (h *HTTPHandler) ProcessGeneration(c *gin.Context) {
	var req entity.ProcessGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	// Provider calls can run for minutes and must not die with the inbound
	// connection; the dispatcher's client gives up long before polling does.
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := h.generationService.Process(ctx, req.GenerationID)
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			NotFound(c, ErrCodeGenerationNotFound, "generation not found")
			return
		}
		logrus.WithError(err).WithField("generation_id", req.GenerationID).Error("generation processing failed")
		InternalError(c, "failed to process generation")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ownedGeneration loads the :id generation and checks ownership. Admins may
// access any generation. Writes the error response on failure.
func (h *HTTPHandler) ownedGeneration(c *gin.Context, ctx context.Context) (*entity.DbGeneration, bool) {
	generationID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}

	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	generation, err := h.repo.GetGeneration(ctx, generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeGenerationNotFound, "generation not found")
			return nil, false
		}
		logrus.WithError(err).WithField("generation_id", generationID).Error("failed to load generation")
		InternalError(c, "failed to load generation")
		return nil, false
	}

	if generation.UserID != user.ID && !user.IsAdmin() {
		NotFound(c, ErrCodeGenerationNotFound, "generation not found")
		return nil, false
	}
	return generation, true
}
