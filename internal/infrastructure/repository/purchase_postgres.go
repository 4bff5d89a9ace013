package repository

import (
	"context"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) HasCompleted(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Purchase{}).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, domain.PurchaseCompleted).
		Count(&count).Error
	return count > 0, err
}

// UpsertPending inserts the (user, course) row or, when one already exists and is not
// COMPLETED, reissues its provider reference and resets it to PENDING. Every reference
// is also stored as an attempt.
func (r *PurchaseRepository) UpsertPending(ctx context.Context, p *domain.Purchase) (*domain.Purchase, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = domain.PurchasePending

	var stored domain.Purchase
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
				DoNothing: true,
			}).
			Create(p)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// повторная попытка: та же строка, новая ссылка провайдера
			reissue := tx.Model(&domain.Purchase{}).
				Where("user_id = ? AND course_id = ? AND status <> ?", p.UserID, p.CourseID, domain.PurchaseCompleted).
				Updates(map[string]any{
					"provider":       p.Provider,
					"provider_ref":   p.ProviderRef,
					"transaction_id": p.TransactionID,
					"amount":         p.Amount,
					"currency":       p.Currency,
					"status":         domain.PurchasePending,
					"updated_at":     time.Now(),
				})
			if reissue.Error != nil {
				return reissue.Error
			}
			if reissue.RowsAffected == 0 {
				return domain.ErrAlreadyOwned
			}
		}

		if err := tx.Where("user_id = ? AND course_id = ?", p.UserID, p.CourseID).First(&stored).Error; err != nil {
			return notFound(err, domain.ErrPurchaseNotFound)
		}
		return tx.Create(&domain.PurchaseAttempt{
			ID:            uuid.New(),
			PurchaseID:    stored.ID,
			Provider:      p.Provider,
			ProviderRef:   p.ProviderRef,
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			Currency:      p.Currency,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MarkCompleted is idempotent. The bool reports whether this call made the transition.
// A superseded reference completes the row too and becomes its current reference again,
// since the buyer paid that intent.
func (r *PurchaseRepository) MarkCompleted(ctx context.Context, ref string) (*domain.Purchase, bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt domain.PurchaseAttempt
		if err := tx.Where("provider_ref = ?", ref).First(&attempt).Error; err != nil {
			return notFound(err, domain.ErrPurchaseNotFound)
		}
		result := tx.Model(&domain.Purchase{}).
			Where("id = ? AND status <> ?", attempt.PurchaseID, domain.PurchaseCompleted).
			Updates(map[string]any{
				"status":         domain.PurchaseCompleted,
				"provider":       attempt.Provider,
				"provider_ref":   attempt.ProviderRef,
				"transaction_id": attempt.TransactionID,
				"amount":         attempt.Amount,
				"currency":       attempt.Currency,
				"updated_at":     time.Now(),
			})
		changed = result.RowsAffected > 0
		return result.Error
	})
	if err != nil {
		return nil, false, err
	}

	p, err := r.GetByRef(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// MarkFailed only moves PENDING rows whose current reference is ref. A failure on a
// superseded reference says nothing about the newer attempt.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, ref string) (*domain.Purchase, bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Purchase{}).
		Where("provider_ref = ? AND status = ?", ref, domain.PurchasePending).
		Updates(map[string]any{"status": domain.PurchaseFailed, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, false, result.Error
	}

	p, err := r.GetByRef(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	return p, result.RowsAffected > 0, nil
}

// GetByRef resolves current and superseded references alike.
func (r *PurchaseRepository) GetByRef(ctx context.Context, ref string) (*domain.Purchase, error) {
	db := r.db.WithContext(ctx)
	attempts := db.Model(&domain.PurchaseAttempt{}).Select("purchase_id").Where("provider_ref = ?", ref)

	var p domain.Purchase
	err := db.
		Preload("Course").
		Where("provider_ref = ? OR id IN (?)", ref, attempts).
		First(&p).Error
	if err != nil {
		return nil, notFound(err, domain.ErrPurchaseNotFound)
	}
	return &p, nil
}

func (r *PurchaseRepository) AttemptByRef(ctx context.Context, ref string) (*domain.PurchaseAttempt, error) {
	var a domain.PurchaseAttempt
	if err := r.db.WithContext(ctx).Where("provider_ref = ?", ref).First(&a).Error; err != nil {
		return nil, notFound(err, domain.ErrPurchaseNotFound)
	}
	return &a, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Purchase, error) {
	var purchases []domain.Purchase
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&purchases).Error
	return purchases, err
}
