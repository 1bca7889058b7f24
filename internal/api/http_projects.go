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

// CreateProject creates a project for the current user.
func (h *HTTPHandler) CreateProject(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	project := &entity.DbProject{
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.CreateProject(ctx, project); err != nil {
		logrus.WithError(err).Error("failed to create project")
		InternalError(c, "failed to create project")
		return
	}

	c.JSON(http.StatusCreated, project)
}

// ListProjects returns the current user's projects.
func (h *HTTPHandler) ListProjects(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	projects, err := h.repo.ListProjects(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).Error("failed to list projects")
		InternalError(c, "failed to list projects")
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// UpdateProject applies a partial update to a project the user owns.
func (h *HTTPHandler) UpdateProject(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.ownedProject(c, ctx, projectID); !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	updates := entity.ProjectUpdates{
		Name:        req.Name,
		Description: req.Description,
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	if err := h.repo.UpdateProject(ctx, projectID, updates); err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Error("failed to update project")
		InternalError(c, "failed to update project")
		return
	}

	project, err := h.repo.GetProject(ctx, projectID)
	if err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Error("failed to reload project")
		InternalError(c, "failed to load project")
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject removes a project the user owns along with its sessions.
func (h *HTTPHandler) DeleteProject(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, ok := h.ownedProject(c, ctx, projectID); !ok {
		return
	}

	if err := h.repo.DeleteProject(ctx, projectID); err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Error("failed to delete project")
		InternalError(c, "failed to delete project")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// CreateSession creates a session inside a project the user owns.
func (h *HTTPHandler) CreateSession(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req entity.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	project, ok := h.ownedProject(c, ctx, projectID)
	if !ok {
		return
	}

	session := &entity.DbSession{
		ProjectID: project.ID,
		UserID:    project.UserID,
		Name:      req.Name,
	}

	if err := h.repo.CreateSession(ctx, session); err != nil {
		logrus.WithError(err).Error("failed to create session")
		InternalError(c, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, session)
}

// ListSessions returns the sessions of a project the user owns.
func (h *HTTPHandler) ListSessions(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, ok := h.ownedProject(c, ctx, projectID); !ok {
		return
	}

	sessions, err := h.repo.ListSessions(ctx, projectID)
	if err != nil {
		logrus.WithError(err).WithField("project_id", projectID).Error("failed to list sessions")
		InternalError(c, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// DeleteSession removes a session the user owns.
func (h *HTTPHandler) DeleteSession(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.ownedSession(c, ctx, sessionID); !ok {
		return
	}

	if err := h.repo.DeleteSession(ctx, sessionID); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to delete session")
		InternalError(c, "failed to delete session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ownedProject loads a project and checks that the current user owns it.
// Admins may access any project. Writes the error response on failure.
func (h *HTTPHandler) ownedProject(c *gin.Context, ctx context.Context, projectID uint) (*entity.DbProject, bool) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	project, err := h.repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeProjectNotFound, "project not found")
			return nil, false
		}
		logrus.WithError(err).WithField("project_id", projectID).Error("failed to load project")
		InternalError(c, "failed to load project")
		return nil, false
	}

	if project.UserID != user.ID && !user.IsAdmin() {
		NotFound(c, ErrCodeProjectNotFound, "project not found")
		return nil, false
	}
	return project, true
}

// ownedSession loads a session and checks ownership the same way.
func (h *HTTPHandler) ownedSession(c *gin.Context, ctx context.Context, sessionID uint) (*entity.DbSession, bool) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeSessionNotFound, "session not found")
			return nil, false
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to load session")
		InternalError(c, "failed to load session")
		return nil, false
	}

	if session.UserID != user.ID && !user.IsAdmin() {
		NotFound(c, ErrCodeSessionNotFound, "session not found")
		return nil, false
	}
	return session, true
}
