package entity

// UserUpdates carries optional user fields for partial updates.
type UserUpdates struct {
	DisplayName  *string
	Role         *string
	PasswordHash *string
	IsActive     *bool
}

// ToMap converts to a GORM update map.
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	return updates
}

// IsEmpty reports whether no fields are set.
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// ProjectUpdates carries optional project fields for partial updates.
type ProjectUpdates struct {
	Name        *string
	Description *string
}

// ToMap converts to a GORM update map.
func (u ProjectUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}
	return updates
}

// IsEmpty reports whether no fields are set.
func (u ProjectUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// GenerationUpdates carries optional generation fields for partial updates.
// Status transitions that must be conditional (the processing claim, the
// completed transition) do not go through this struct; the repository exposes
// dedicated operations for those.
type GenerationUpdates struct {
	ModelID        *string
	Status         *string
	ErrorMessage   *string
	ErrorCategory  *string
	ErrorRetryable *bool
	Cost           *float64
	ClearCost      bool
}

// ToMap converts to a GORM update map.
func (u GenerationUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.ModelID != nil {
		updates["model_id"] = *u.ModelID
	}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	if u.ErrorCategory != nil {
		updates["error_category"] = *u.ErrorCategory
	}
	if u.ErrorRetryable != nil {
		updates["error_retryable"] = *u.ErrorRetryable
	}
	if u.Cost != nil {
		updates["cost"] = *u.Cost
	} else if u.ClearCost {
		updates["cost"] = nil
	}
	return updates
}

// IsEmpty reports whether no fields are set.
func (u GenerationUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// PromptTemplateUpdates carries optional template fields for partial updates.
type PromptTemplateUpdates struct {
	Name     *string
	Template *string
	IsActive *bool
}

// ToMap converts to a GORM update map.
func (u PromptTemplateUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Template != nil {
		updates["template"] = *u.Template
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	return updates
}

// IsEmpty reports whether no fields are set.
func (u PromptTemplateUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
