package sql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mediaforge/internal/entity"
)

// CreatePromptTemplate persists a new prompt template.
func (r *GormRepository) CreatePromptTemplate(ctx context.Context, template *entity.DbPromptTemplate) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if template == nil {
		return fmt.Errorf("template is nil")
	}
	return r.db.WithContext(ctx).Create(template).Error
}

// UpdatePromptTemplate applies a partial update to an existing template.
func (r *GormRepository) UpdatePromptTemplate(ctx context.Context, id uint, updates entity.PromptTemplateUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid template id")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbPromptTemplate{}).Where("id = ?", id).Updates(fields).Error
}

// ListPromptTemplates returns templates, optionally including inactive ones.
func (r *GormRepository) ListPromptTemplates(ctx context.Context, includeInactive bool) ([]entity.DbPromptTemplate, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	query := r.db.WithContext(ctx).Model(&entity.DbPromptTemplate{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var templates []entity.DbPromptTemplate
	if err := query.Order("id DESC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// DeletePromptTemplate removes a template by ID.
func (r *GormRepository) DeletePromptTemplate(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid template id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbPromptTemplate{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
