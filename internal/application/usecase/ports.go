package usecase

import (
	"context"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/google/uuid"
)

type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetRole(ctx context.Context, id uuid.UUID, role domain.Role) error
}

type CourseStore interface {
	GetPublishedBySlug(ctx context.Context, slug string) (*domain.Course, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*domain.Lesson, error)
}

type PurchaseStore interface {
	HasCompleted(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	UpsertPending(ctx context.Context, p *domain.Purchase) (*domain.Purchase, error)
	MarkCompleted(ctx context.Context, ref string) (*domain.Purchase, bool, error)
	MarkFailed(ctx context.Context, ref string) (*domain.Purchase, bool, error)
	GetByRef(ctx context.Context, ref string) (*domain.Purchase, error)
	AttemptByRef(ctx context.Context, ref string) (*domain.PurchaseAttempt, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error)
}

type ProgressStore interface {
	Record(ctx context.Context, upd domain.ProgressUpdate, now time.Time) (*domain.Progress, error)
}

type SettingStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Principal is the caller identity taken from a verified session token.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   domain.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}
