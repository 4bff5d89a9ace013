package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/payment"
)

func checkout(t *testing.T, env *testEnv, p Principal) string {
	t.Helper()
	res, err := env.ledger.Checkout(context.Background(), p, "forex-101", domain.ProviderStripe)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	return res.Purchase.ProviderRef
}

func TestVerifyCapturesApprovedPayment(t *testing.T) {
	env := newEnv(t)
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	env.provider.set(ref, payment.StatusApproved)
	p, err := env.reconciler.Verify(context.Background(), alice, ref)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Status != domain.PurchaseCompleted || env.provider.captures != 1 {
		t.Fatalf("status=%s captures=%d", p.Status, env.provider.captures)
	}

	// terminal purchases are not polled again
	p, err = env.reconciler.Verify(context.Background(), alice, ref)
	if err != nil || p.Status != domain.PurchaseCompleted || env.provider.captures != 1 {
		t.Fatalf("second Verify: %+v captures=%d err=%v", p, env.provider.captures, err)
	}
}

func TestVerifyPendingStaysPending(t *testing.T) {
	env := newEnv(t)
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	p, err := env.reconciler.Verify(context.Background(), alice, ref)
	if err != nil || p.Status != domain.PurchasePending {
		t.Fatalf("Verify = %+v, %v", p, err)
	}
}

func TestVerifyProviderTimeout(t *testing.T) {
	env := newEnv(t)
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	env.provider.mu.Lock()
	env.provider.block = true
	env.provider.mu.Unlock()

	if _, err := env.reconciler.Verify(context.Background(), alice, ref); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	p, _ := env.purchases.GetByRef(context.Background(), ref)
	if p.Status != domain.PurchasePending {
		t.Fatalf("timeout must leave the purchase pending, got %s", p.Status)
	}
}

func TestVerifyProviderError(t *testing.T) {
	env := newEnv(t)
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	env.provider.mu.Lock()
	env.provider.fetchErr = errors.New("connection reset")
	env.provider.mu.Unlock()

	if _, err := env.reconciler.Verify(context.Background(), alice, ref); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestVerifyOtherUsersPurchase(t *testing.T) {
	env := newEnv(t)
	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")
	ref := checkout(t, env, alice)

	if _, err := env.reconciler.Verify(context.Background(), bob, ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWebhookSignatureCheckedBeforeLedger(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	err := env.reconciler.HandleWebhook(ctx, "stripe", webhook(ref, payment.StatusSucceeded), nil)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	p, _ := env.purchases.GetByRef(ctx, ref)
	if p.Status != domain.PurchasePending {
		t.Fatalf("unsigned webhook changed the ledger: %s", p.Status)
	}
}

func TestWebhookTransitions(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)

	if err := env.reconciler.HandleWebhook(ctx, "stripe", []byte(`{"type":"ignored"}`), signed()); err != nil {
		t.Fatalf("ignored event: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.reconciler.HandleWebhook(ctx, "stripe", webhook(ref, payment.StatusSucceeded), signed()); err != nil {
			t.Fatalf("succeeded webhook #%d: %v", i+1, err)
		}
	}
	// stale failure after completion
	if err := env.reconciler.HandleWebhook(ctx, "stripe", webhook(ref, payment.StatusFailed), signed()); err != nil {
		t.Fatalf("stale failed webhook: %v", err)
	}
	p, _ := env.purchases.GetByRef(ctx, ref)
	if p.Status != domain.PurchaseCompleted {
		t.Fatalf("COMPLETED was overwritten: %s", p.Status)
	}

	err := env.reconciler.HandleWebhook(ctx, "stripe", webhook("pi_unknown", payment.StatusSucceeded), signed())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.reconciler.HandleWebhook(ctx, "manual", nil, signed()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("manual has no webhooks, got %v", err)
	}
	if err := env.reconciler.HandleWebhook(ctx, "venmo", nil, signed()); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestSupersededReferenceStillSettles(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	first := checkout(t, env, alice)
	second := checkout(t, env, alice)
	if first == second {
		t.Fatalf("retry must issue a new reference")
	}

	// оплачен первый intent, уже заменённый повторной попыткой
	if err := env.reconciler.HandleWebhook(ctx, "stripe", webhook(first, payment.StatusSucceeded), signed()); err != nil {
		t.Fatalf("webhook for superseded reference: %v", err)
	}
	p, err := env.ledger.GetStatus(ctx, alice, second)
	if err != nil || p.Status != domain.PurchaseCompleted || p.ProviderRef != first {
		t.Fatalf("purchase = %+v, %v", p, err)
	}
	if _, err := env.ledger.Checkout(ctx, alice, "forex-101", domain.ProviderStripe); !errors.Is(err, domain.ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}
}

func TestVerifySupersededReference(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	first := checkout(t, env, alice)
	checkout(t, env, alice)

	env.provider.set(first, payment.StatusSucceeded)
	p, err := env.reconciler.Verify(ctx, alice, first)
	if err != nil || p.Status != domain.PurchaseCompleted {
		t.Fatalf("Verify(superseded) = %+v, %v", p, err)
	}
}

func TestWebhookAndPollRace(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	ref := checkout(t, env, alice)
	env.provider.set(ref, payment.StatusSucceeded)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- env.reconciler.HandleWebhook(ctx, "stripe", webhook(ref, payment.StatusSucceeded), signed())
		}()
		go func() {
			defer wg.Done()
			p, err := env.reconciler.Verify(ctx, alice, ref)
			if err == nil && p.Status != domain.PurchaseCompleted {
				t.Errorf("loser must observe COMPLETED, got %s", p.Status)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("race: %v", err)
		}
	}
}

func TestConfirmManualPurchase(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")

	res, err := env.ledger.Checkout(ctx, alice, "forex-101", domain.ProviderManual)
	if err != nil {
		t.Fatalf("Checkout manual: %v", err)
	}
	p, err := env.admin.ConfirmManualPurchase(ctx, res.Purchase.ProviderRef)
	if err != nil || p.Status != domain.PurchaseCompleted {
		t.Fatalf("ConfirmManualPurchase = %+v, %v", p, err)
	}
	if _, err := env.ledger.Checkout(ctx, alice, "forex-101", domain.ProviderManual); !errors.Is(err, domain.ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}

	bob := env.register(t, "bob@example.com")
	ref := checkout(t, env, bob)
	if _, err := env.admin.ConfirmManualPurchase(ctx, ref); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("card purchases cannot be confirmed by hand, got %v", err)
	}
}
