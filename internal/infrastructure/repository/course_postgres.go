package repository

import (
	"context"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) GetPublishedBySlug(ctx context.Context, slug string) (*domain.Course, error) {
	var course domain.Course
	err := r.db.WithContext(ctx).
		Where("slug = ? AND is_published = ?", slug, true).
		First(&course).Error
	if err != nil {
		return nil, notFound(err, domain.ErrCourseNotFound)
	}
	return &course, nil
}

// GetLesson returns a published lesson of a published course, with the course loaded.
func (r *CourseRepository) GetLesson(ctx context.Context, id uuid.UUID) (*domain.Lesson, error) {
	var lesson domain.Lesson
	err := r.db.WithContext(ctx).
		Joins("Course").
		Where("lessons.id = ? AND lessons.is_published = ? AND \"Course\".is_published = ?", id, true, true).
		First(&lesson).Error
	if err != nil {
		return nil, notFound(err, domain.ErrLessonNotFound)
	}
	return &lesson, nil
}

func (r *CourseRepository) Create(ctx context.Context, course *domain.Course) error {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	for i := range course.Lessons {
		if course.Lessons[i].ID == uuid.Nil {
			course.Lessons[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(course).Error
}
