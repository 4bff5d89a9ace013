package usecase

import (
	"context"
	"strings"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"

	"go.uber.org/zap"
)

type CheckoutResult struct {
	Purchase     *domain.Purchase
	ClientSecret string
	ApproveURL   string
}

// PurchaseUseCase is the ledger: the only place purchase rows change.
type PurchaseUseCase struct {
	courses   CourseStore
	purchases PurchaseStore
	registry  *payment.Registry
	log       *zap.Logger
}

func NewPurchaseUseCase(cs CourseStore, ps PurchaseStore, reg *payment.Registry, log *zap.Logger) *PurchaseUseCase {
	return &PurchaseUseCase{courses: cs, purchases: ps, registry: reg, log: log}
}

func (uc *PurchaseUseCase) Checkout(ctx context.Context, p Principal, courseSlug string, provider domain.Provider) (*CheckoutResult, error) {
	courseSlug = strings.TrimSpace(courseSlug)
	if courseSlug == "" {
		return nil, domain.Invalid("course slug is required")
	}
	adapter, err := uc.registry.Get(provider)
	if err != nil {
		return nil, domain.Invalid("unsupported payment provider %q", provider)
	}

	course, err := uc.courses.GetPublishedBySlug(ctx, courseSlug)
	if err != nil {
		return nil, err
	}
	owned, err := uc.purchases.HasCompleted(ctx, p.UserID, course.ID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, domain.ErrAlreadyOwned
	}

	txnID := domain.NewTransactionID()
	intent, err := adapter.CreatePayment(ctx, course.Price, course.Currency, map[string]string{
		"user_id":        p.UserID.String(),
		"course_id":      course.ID.String(),
		"course_name":    course.Name,
		"transaction_id": txnID,
	})
	if err != nil {
		uc.log.Error("create payment", zap.String("provider", string(provider)), zap.Error(err))
		return nil, err
	}

	purchase, err := uc.purchases.UpsertPending(ctx, &domain.Purchase{
		UserID:        p.UserID,
		CourseID:      course.ID,
		Amount:        course.Price,
		Currency:      course.Currency,
		Provider:      provider,
		ProviderRef:   intent.Reference,
		TransactionID: txnID,
	})
	if err != nil {
		return nil, err
	}
	purchase.Course = course

	uc.log.Info("purchase pending",
		zap.String("transaction_id", purchase.TransactionID),
		zap.String("provider", string(provider)),
		zap.String("course", course.Slug),
	)
	return &CheckoutResult{Purchase: purchase, ClientSecret: intent.ClientSecret, ApproveURL: intent.ApproveURL}, nil
}

// GetStatus hides purchases of other users behind NotFound unless the caller is an admin.
func (uc *PurchaseUseCase) GetStatus(ctx context.Context, p Principal, ref string) (*domain.Purchase, error) {
	purchase, err := uc.purchases.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if purchase.UserID != p.UserID && !p.IsAdmin() {
		return nil, domain.ErrPurchaseNotFound
	}
	return purchase, nil
}

func (uc *PurchaseUseCase) ListForUser(ctx context.Context, p Principal) ([]domain.Purchase, error) {
	return uc.purchases.ListByUser(ctx, p.UserID)
}

func (uc *PurchaseUseCase) MarkCompleted(ctx context.Context, ref string) (*domain.Purchase, error) {
	purchase, changed, err := uc.purchases.MarkCompleted(ctx, ref)
	if err != nil {
		return nil, err
	}
	if changed {
		uc.log.Info("purchase completed", zap.String("transaction_id", purchase.TransactionID))
	}
	return purchase, nil
}

func (uc *PurchaseUseCase) MarkFailed(ctx context.Context, ref string) (*domain.Purchase, error) {
	purchase, changed, err := uc.purchases.MarkFailed(ctx, ref)
	if err != nil {
		return nil, err
	}
	if changed {
		uc.log.Info("purchase failed", zap.String("transaction_id", purchase.TransactionID))
	}
	return purchase, nil
}

func (uc *PurchaseUseCase) byRef(ctx context.Context, ref string) (*domain.Purchase, error) {
	return uc.purchases.GetByRef(ctx, ref)
}

// providerFor names the network that issued ref, which after a retry may differ from
// the purchase's current provider.
func (uc *PurchaseUseCase) providerFor(ctx context.Context, purchase *domain.Purchase, ref string) (domain.Provider, error) {
	if purchase.ProviderRef == ref {
		return purchase.Provider, nil
	}
	attempt, err := uc.purchases.AttemptByRef(ctx, ref)
	if err != nil {
		return "", err
	}
	return attempt.Provider, nil
}
