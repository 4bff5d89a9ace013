package repository

import (
	"context"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Record stores a playback report. Percent never goes down and a completed lesson
// stays completed.
func (r *ProgressRepository) Record(ctx context.Context, upd domain.ProgressUpdate, now time.Time) (*domain.Progress, error) {
	upd = upd.Normalize()

	var stored domain.Progress
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := domain.Progress{
			UserID:              upd.UserID,
			LessonID:            upd.LessonID,
			ProgressPercent:     upd.ProgressPercent,
			LastPositionSeconds: upd.LastPositionSeconds,
			IsCompleted:         upd.Completed,
			UpdatedAt:           now,
		}
		if upd.Completed {
			row.CompletedAt = &now
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			scope := func() *gorm.DB {
				return tx.Model(&domain.Progress{}).
					Where("user_id = ? AND lesson_id = ?", upd.UserID, upd.LessonID)
			}
			if err := scope().
				Updates(map[string]any{"last_position_seconds": upd.LastPositionSeconds, "updated_at": now}).
				Error; err != nil {
				return err
			}
			if err := scope().
				Where("progress_percent < ?", upd.ProgressPercent).
				Update("progress_percent", upd.ProgressPercent).
				Error; err != nil {
				return err
			}
			if upd.Completed {
				if err := scope().
					Where("is_completed = ?", false).
					Updates(map[string]any{"is_completed": true, "completed_at": now}).
					Error; err != nil {
					return err
				}
			}
		}

		return tx.Where("user_id = ? AND lesson_id = ?", upd.UserID, upd.LessonID).First(&stored).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
