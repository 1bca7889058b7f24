package model

import (
	"context"
	"time"

	"mediaforge/internal/entity"
)

// Repository defines the persistence operations used by the services.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) error
	CountUsers(ctx context.Context) (int64, error)

	// Projects and sessions
	CreateProject(ctx context.Context, project *entity.DbProject) error
	UpdateProject(ctx context.Context, id uint, updates entity.ProjectUpdates) error
	GetProject(ctx context.Context, id uint) (*entity.DbProject, error)
	ListProjects(ctx context.Context, userID uint) ([]entity.DbProject, error)
	DeleteProject(ctx context.Context, id uint) error
	CreateSession(ctx context.Context, session *entity.DbSession) error
	GetSession(ctx context.Context, id uint) (*entity.DbSession, error)
	ListSessions(ctx context.Context, projectID uint) ([]entity.DbSession, error)
	DeleteSession(ctx context.Context, id uint) error

	// Generations
	CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error
	GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error)
	UpdateGeneration(ctx context.Context, id uint, updates entity.GenerationUpdates) error
	ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error)
	DeleteGeneration(ctx context.Context, id uint) error

	// ClaimGeneration atomically moves a processing generation to
	// processing_locked. It reports false when another worker already holds
	// the claim or the generation is not in processing.
	ClaimGeneration(ctx context.Context, id uint) (bool, error)

	// CompleteGeneration transitions a locked generation to completed and
	// persists its outputs in one transaction.
	CompleteGeneration(ctx context.Context, id uint, cost *float64, outputs []entity.DbOutput) error

	// TouchGenerationHeartbeat refreshes the liveness timestamp of a locked
	// generation so the recovery sweep leaves it alone.
	TouchGenerationHeartbeat(ctx context.Context, id uint) error

	DeleteGenerationOutputs(ctx context.Context, generationID uint) error
	UpdateOutput(ctx context.Context, id uint, approved bool) error

	// SweepStaleGenerations fails generations stuck in a non-terminal status
	// for longer than minAge whose heartbeat is absent or older than
	// staleness. It returns the ids it transitioned.
	SweepStaleGenerations(ctx context.Context, minAge, staleness time.Duration) ([]uint, error)

	// Prompt templates
	CreatePromptTemplate(ctx context.Context, template *entity.DbPromptTemplate) error
	UpdatePromptTemplate(ctx context.Context, id uint, updates entity.PromptTemplateUpdates) error
	ListPromptTemplates(ctx context.Context, includeInactive bool) ([]entity.DbPromptTemplate, error)
	DeletePromptTemplate(ctx context.Context, id uint) error
}
