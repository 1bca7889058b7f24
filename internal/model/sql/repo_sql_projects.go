package sql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mediaforge/internal/entity"
)

// CreateProject persists a new project.
func (r *GormRepository) CreateProject(ctx context.Context, project *entity.DbProject) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if project == nil {
		return fmt.Errorf("project is nil")
	}
	return r.db.WithContext(ctx).Create(project).Error
}

// UpdateProject applies a partial update to an existing project.
func (r *GormRepository) UpdateProject(ctx context.Context, id uint, updates entity.ProjectUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid project id")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbProject{}).Where("id = ?", id).Updates(fields).Error
}

// GetProject loads a project by ID.
func (r *GormRepository) GetProject(ctx context.Context, id uint) (*entity.DbProject, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid project id")
	}
	var project entity.DbProject
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects returns all projects owned by a user, newest first.
func (r *GormRepository) ListProjects(ctx context.Context, userID uint) ([]entity.DbProject, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var projects []entity.DbProject
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes a project and its sessions.
func (r *GormRepository) DeleteProject(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid project id")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&entity.DbSession{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.DbProject{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CreateSession persists a new session.
func (r *GormRepository) CreateSession(ctx context.Context, session *entity.DbSession) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSession loads a session by ID.
func (r *GormRepository) GetSession(ctx context.Context, id uint) (*entity.DbSession, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid session id")
	}
	var session entity.DbSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns all sessions in a project, newest first.
func (r *GormRepository) ListSessions(ctx context.Context, projectID uint) ([]entity.DbSession, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var sessions []entity.DbSession
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session by ID.
func (r *GormRepository) DeleteSession(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid session id")
	}
	result := r.db.WithContext(ctx).Delete(&entity.DbSession{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
