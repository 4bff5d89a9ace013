package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Course and Lesson belong to the catalog; this service only reads them.
type Course struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Slug        string          `gorm:"uniqueIndex;not null;size:100"`
	Name        string          `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Currency    string          `gorm:"size:3;not null;default:'PLN'"`
	IsPublished bool            `gorm:"not null;default:false"`

	Lessons []Lesson `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Lesson struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CourseID      uuid.UUID `gorm:"type:uuid;index;not null"`
	Course        *Course   `gorm:"foreignKey:CourseID"`
	Title         string
	VideoURL      string
	IsFreePreview bool `gorm:"not null;default:false"`
	IsPublished   bool `gorm:"not null;default:false"`
	Position      int  `gorm:"not null;default:0"` // порядок внутри курса

	CreatedAt time.Time
}
