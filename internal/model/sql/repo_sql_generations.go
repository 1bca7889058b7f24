package sql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mediaforge/internal/entity"
)

// CreateGeneration persists a new generation record.
func (r *GormRepository) CreateGeneration(ctx context.Context, generation *entity.DbGeneration) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if generation == nil {
		return fmt.Errorf("generation is nil")
	}
	return r.db.WithContext(ctx).Create(generation).Error
}

// GetGeneration loads a generation with its outputs.
func (r *GormRepository) GetGeneration(ctx context.Context, id uint) (*entity.DbGeneration, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid generation id")
	}
	var generation entity.DbGeneration
	if err := r.db.WithContext(ctx).Preload("Outputs").First(&generation, id).Error; err != nil {
		return nil, err
	}
	return &generation, nil
}

// UpdateGeneration applies a partial update to an existing generation.
func (r *GormRepository) UpdateGeneration(ctx context.Context, id uint, updates entity.GenerationUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	fields := updates.ToMap()
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbGeneration{}).Where("id = ?", id).Updates(fields).Error
}

// ClaimGeneration atomically moves a generation from processing to
// processing_locked. The conditional update makes concurrent claims safe:
// exactly one caller sees RowsAffected == 1.
func (r *GormRepository) ClaimGeneration(ctx context.Context, id uint) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return false, fmt.Errorf("invalid generation id")
	}

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.DbGeneration{}).
		Where("id = ? AND status = ?", id, entity.GenerationStatusProcessing).
		Updates(map[string]interface{}{
			"status":       entity.GenerationStatusLocked,
			"heartbeat_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CompleteGeneration transitions a locked generation to completed and writes
// its outputs in one transaction. The status condition keeps a sweep that
// already failed the generation from being overwritten.
func (r *GormRepository) CompleteGeneration(ctx context.Context, id uint, cost *float64, outputs []entity.DbOutput) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":          entity.GenerationStatusCompleted,
			"error_message":   "",
			"error_category":  "",
			"error_retryable": false,
			"cost":            cost,
		}
		result := tx.Model(&entity.DbGeneration{}).
			Where("id = ? AND status = ?", id, entity.GenerationStatusLocked).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("generation %d is not locked for completion", id)
		}

		for i := range outputs {
			outputs[i].ID = 0
			outputs[i].GenerationID = id
		}
		if len(outputs) > 0 {
			if err := tx.Create(&outputs).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// TouchGenerationHeartbeat refreshes the liveness timestamp of a locked
// generation.
func (r *GormRepository) TouchGenerationHeartbeat(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	return r.db.WithContext(ctx).Model(&entity.DbGeneration{}).
		Where("id = ? AND status = ?", id, entity.GenerationStatusLocked).
		Update("heartbeat_at", time.Now()).Error
}

// ListGenerations returns paginated generations matching the query.
func (r *GormRepository) ListGenerations(ctx context.Context, params *entity.GenerationQuery) ([]entity.DbGeneration, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbGeneration{})
	if params != nil {
		if !params.IncludeAll && params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if params.SessionID > 0 {
			query = query.Where("session_id = ?", params.SessionID)
		}
		if params.Status != "" {
			query = query.Where("status = ?", params.Status)
		}
		if params.ModelID != "" {
			query = query.Where("model_id = ?", params.ModelID)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	page := 1
	pageSize := 20
	if params != nil {
		if params.Page > 0 {
			page = int(params.Page)
		}
		if params.PageSize > 0 {
			pageSize = int(params.PageSize)
		}
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	var generations []entity.DbGeneration
	if err := query.Preload("Outputs").Order("id DESC").Offset(offset).Limit(pageSize).Find(&generations).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return generations, meta, nil
}

// DeleteGeneration removes a generation and its outputs.
func (r *GormRepository) DeleteGeneration(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid generation id")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation_id = ?", id).Delete(&entity.DbOutput{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.DbGeneration{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// DeleteGenerationOutputs removes all outputs of a generation. Retry uses it
// so a re-run starts from a clean slate.
func (r *GormRepository) DeleteGenerationOutputs(ctx context.Context, generationID uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if generationID == 0 {
		return fmt.Errorf("invalid generation id")
	}
	return r.db.WithContext(ctx).Where("generation_id = ?", generationID).Delete(&entity.DbOutput{}).Error
}

// UpdateOutput sets the approval flag on an output.
func (r *GormRepository) UpdateOutput(ctx context.Context, id uint, approved bool) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid output id")
	}
	result := r.db.WithContext(ctx).Model(&entity.DbOutput{}).Where("id = ?", id).Update("approved", approved)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SweepStaleGenerations fails generations stuck in a non-terminal status.
// A generation qualifies when it was created at or before now-minAge and its
// heartbeat is absent or older than now-staleness. The age boundary is
// inclusive.
func (r *GormRepository) SweepStaleGenerations(ctx context.Context, minAge, staleness time.Duration) ([]uint, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}

	now := time.Now()
	ageCutoff := now.Add(-minAge)
	heartbeatCutoff := now.Add(-staleness)

	var ids []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&entity.DbGeneration{}).
			Where("status IN ?", []string{entity.GenerationStatusProcessing, entity.GenerationStatusLocked}).
			Where("created_at <= ?", ageCutoff).
			Where("heartbeat_at IS NULL OR heartbeat_at <= ?", heartbeatCutoff)

		if err := query.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&entity.DbGeneration{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":          entity.GenerationStatusFailed,
				"error_message":   "generation timed out and was recovered by the admin sweep",
				"error_category":  entity.ErrorCategoryTimeout,
				"error_retryable": true,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
