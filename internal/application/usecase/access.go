package usecase

import (
	"context"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContentGrant struct {
	Token     string
	ExpiresAt time.Time
	LessonID  uuid.UUID
	VideoURL  string
}

type AccessUseCase struct {
	courses   CourseStore
	purchases PurchaseStore
	tokens    *security.TokenManager
	governor  *ratelimit.Governor
	limit     int
	window    time.Duration
	log       *zap.Logger
}

func NewAccessUseCase(
	cs CourseStore,
	ps PurchaseStore,
	tm *security.TokenManager,
	gov *ratelimit.Governor,
	limit int,
	window time.Duration,
	log *zap.Logger,
) *AccessUseCase {
	return &AccessUseCase{
		courses:   cs,
		purchases: ps,
		tokens:    tm,
		governor:  gov,
		limit:     limit,
		window:    window,
		log:       log,
	}
}

// IssueContentToken spends one rate unit for clientKey before looking at the lesson,
// so a throttled caller learns nothing about what exists.
func (uc *AccessUseCase) IssueContentToken(ctx context.Context, p Principal, lessonID uuid.UUID, clientKey string) (*ContentGrant, ratelimit.Decision, error) {
	decision, err := uc.governor.Allow(ctx, "content:"+clientKey, uc.limit, uc.window)
	if err != nil {
		// хранилище лимитов недоступно, пропускаем запрос
		uc.log.Warn("rate limit store", zap.Error(err))
		decision = ratelimit.Decision{Allowed: true, Limit: uc.limit, Remaining: uc.limit}
	}
	if !decision.Allowed {
		return nil, decision, domain.ErrRateLimited
	}

	lesson, err := uc.courses.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, decision, err
	}
	if err := uc.authorize(ctx, p, lesson); err != nil {
		return nil, decision, err
	}

	token, exp, err := uc.tokens.IssueContent(p.UserID, lesson.ID)
	if err != nil {
		return nil, decision, err
	}
	return &ContentGrant{Token: token, ExpiresAt: exp, LessonID: lesson.ID, VideoURL: lesson.VideoURL}, decision, nil
}

func (uc *AccessUseCase) authorize(ctx context.Context, p Principal, lesson *domain.Lesson) error {
	if lesson.IsFreePreview || p.IsAdmin() {
		return nil
	}
	owned, err := uc.purchases.HasCompleted(ctx, p.UserID, lesson.CourseID)
	if err != nil {
		return err
	}
	if !owned {
		return domain.ErrAccessDenied
	}
	return nil
}

// VerifyContentToken is the check the content server runs; it must still compare
// LessonID against the lesson being served.
func (uc *AccessUseCase) VerifyContentToken(token string) (*security.ContentClaims, error) {
	return uc.tokens.VerifyContent(token)
}
