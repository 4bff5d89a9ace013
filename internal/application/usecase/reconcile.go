package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"

	"go.uber.org/zap"
)

// ReconcileUseCase folds provider reports, pushed or polled, into the ledger.
type ReconcileUseCase struct {
	ledger   *PurchaseUseCase
	registry *payment.Registry
	timeout  time.Duration
	log      *zap.Logger
}

func NewReconcileUseCase(ledger *PurchaseUseCase, reg *payment.Registry, timeout time.Duration, log *zap.Logger) *ReconcileUseCase {
	return &ReconcileUseCase{ledger: ledger, registry: reg, timeout: timeout, log: log}
}

// Apply is the single transition function shared by webhooks, client verification and
// admin confirmation. An approved payment is captured first where the network needs it.
func (uc *ReconcileUseCase) Apply(ctx context.Context, adapter payment.Adapter, ref string, st payment.Status) (*domain.Purchase, error) {
	if st == payment.StatusApproved {
		if c, ok := adapter.(payment.Capturer); ok {
			captured, err := c.Capture(ctx, ref)
			if err != nil {
				return nil, err
			}
			st = captured
		}
	}

	switch st {
	case payment.StatusSucceeded:
		return uc.ledger.MarkCompleted(ctx, ref)
	case payment.StatusFailed:
		return uc.ledger.MarkFailed(ctx, ref)
	default:
		return uc.ledger.byRef(ctx, ref)
	}
}

// HandleWebhook rejects unauthenticated payloads before the ledger is touched.
func (uc *ReconcileUseCase) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, err := uc.registry.Get(domain.Provider(provider))
	if err != nil {
		return err
	}
	verifier, ok := adapter.(payment.WebhookVerifier)
	if !ok {
		return fmt.Errorf("%w: %s has no webhooks", domain.ErrUnknownProvider, provider)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	ev, err := verifier.ParseWebhook(ctx, payload, headers)
	if err != nil {
		uc.log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		return err
	}
	if ev == nil {
		return nil
	}

	purchase, err := uc.Apply(ctx, adapter, ev.Reference, ev.Status)
	if errors.Is(err, domain.ErrNotFound) {
		uc.log.Warn("webhook for unknown reference",
			zap.String("provider", provider),
			zap.String("event", ev.Type),
			zap.String("reference", ev.Reference),
		)
		return err
	}
	if err != nil {
		return err
	}

	uc.log.Info("webhook applied",
		zap.String("provider", provider),
		zap.String("event", ev.Type),
		zap.String("transaction_id", purchase.TransactionID),
		zap.String("status", string(purchase.Status)),
	)
	return nil
}

// Verify polls the provider on behalf of the purchase owner. Provider trouble leaves the
// purchase as it was and surfaces as ErrProviderUnavailable so the client can retry.
func (uc *ReconcileUseCase) Verify(ctx context.Context, p Principal, ref string) (*domain.Purchase, error) {
	purchase, err := uc.ledger.GetStatus(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	if purchase.Status.Terminal() {
		return purchase, nil
	}

	provider, err := uc.ledger.providerFor(ctx, purchase, ref)
	if err != nil {
		return nil, err
	}
	adapter, err := uc.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	st, err := adapter.FetchStatus(pctx, ref)
	if err != nil {
		return nil, uc.providerError(purchase, err)
	}
	updated, err := uc.Apply(pctx, adapter, ref, st)
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return nil, uc.providerError(purchase, err)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (uc *ReconcileUseCase) providerError(purchase *domain.Purchase, err error) error {
	uc.log.Warn("provider status check failed",
		zap.String("provider", string(purchase.Provider)),
		zap.String("transaction_id", purchase.TransactionID),
		zap.Error(err),
	)
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}
