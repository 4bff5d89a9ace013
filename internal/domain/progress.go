package domain

import (
	"time"

	"github.com/google/uuid"
)

// AutoCompletePercent marks a lesson watched once playback reaches it.
const AutoCompletePercent = 90

type Progress struct {
	UserID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	LessonID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProgressPercent     int       `gorm:"not null;default:0"`
	LastPositionSeconds int       `gorm:"not null;default:0"`
	IsCompleted         bool      `gorm:"not null;default:false"`
	CompletedAt         *time.Time
	UpdatedAt           time.Time
}

func (Progress) TableName() string {
	return "lesson_progress"
}

// ProgressUpdate is one report from the playback client.
type ProgressUpdate struct {
	UserID              uuid.UUID
	LessonID            uuid.UUID
	ProgressPercent     int
	LastPositionSeconds int
	Completed           bool
}

// Normalize clamps the percent and derives the completed flag.
func (u ProgressUpdate) Normalize() ProgressUpdate {
	u.ProgressPercent = max(0, min(100, u.ProgressPercent))
	u.LastPositionSeconds = max(0, u.LastPositionSeconds)
	if u.ProgressPercent >= AutoCompletePercent {
		u.Completed = true
	}
	return u
}
