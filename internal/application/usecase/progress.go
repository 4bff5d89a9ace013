package usecase

import (
	"context"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
)

type ProgressUseCase struct {
	courses   CourseStore
	purchases PurchaseStore
	progress  ProgressStore
	now       func() time.Time
}

func NewProgressUseCase(cs CourseStore, ps PurchaseStore, pr ProgressStore) *ProgressUseCase {
	return &ProgressUseCase{courses: cs, purchases: ps, progress: pr, now: time.Now}
}

func (uc *ProgressUseCase) Record(ctx context.Context, p Principal, upd domain.ProgressUpdate) (*domain.Progress, error) {
	lesson, err := uc.courses.GetLesson(ctx, upd.LessonID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		owned, err := uc.purchases.HasCompleted(ctx, p.UserID, lesson.CourseID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, domain.ErrAccessDenied
		}
	}

	upd.UserID = p.UserID
	return uc.progress.Record(ctx, upd, uc.now())
}
