package entity

import "time"

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

// LoginRequest is the payload for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreateSessionRequest is the payload for creating a session inside a project.
type CreateSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateGenerationRequest is the payload for submitting a generation.
// Parameters is an opaque bag handed to the provider adapter; bag fields may
// overwrite prompt-level fields so callers get raw passthrough for
// provider-specific knobs.
type CreateGenerationRequest struct {
	ModelID        string  `json:"model_id" binding:"required"`
	Prompt         string  `json:"prompt" binding:"required"`
	NegativePrompt string  `json:"negative_prompt"`
	Parameters     JSONMap `json:"parameters"`
}

// ProcessGenerationRequest is the payload delivered to the internal
// processing endpoint by the dispatch processor.
type ProcessGenerationRequest struct {
	GenerationID uint `json:"generation_id" binding:"required"`
}

// SweepRequest configures the stuck-generation recovery sweep.
type SweepRequest struct {
	MinAgeMinutes         int `json:"min_age_minutes"`
	HeartbeatStaleMinutes int `json:"heartbeat_stale_minutes"`
}

// CreatePromptTemplateRequest is the payload for creating a prompt template.
type CreatePromptTemplateRequest struct {
	Name     string `json:"name" binding:"required"`
	Template string `json:"template" binding:"required"`
}

// GenerationQuery filters generation listings.
type GenerationQuery struct {
	BaseParams
	UserID     uint   `json:"-"`
	SessionID  uint   `json:"session_id" form:"session_id"`
	Status     string `json:"status" form:"status"`
	ModelID    string `json:"model_id" form:"model_id"`
	IncludeAll bool   `json:"-"` // admin listings ignore UserID
}

// UserSummary is the safe-to-expose view of a user.
type UserSummary struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuthStatusResponse reports whether any account exists yet.
type AuthStatusResponse struct {
	HasUser bool `json:"has_user"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

// UserQuery filters user listings.
type UserQuery struct {
	BaseParams
	Search string `json:"search" form:"search"`
}
