package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const stripeSignatureTolerance = 5 * time.Minute

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Stripe talks to the PaymentIntents API through stripe-go.
type Stripe struct {
	cfg StripeConfig
	api *client.API
}

func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.APIURL == "" {
		cfg.APIURL = stripe.APIURL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	backendCfg := &stripe.BackendConfig{
		URL:        stripe.String(strings.TrimRight(cfg.APIURL, "/")),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		// повторяет клиент, не сервер
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     cfg.Logger.Named("stripe").Sugar(),
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &Stripe{cfg: cfg, api: api}
}

func (s *Stripe) Name() domain.Provider {
	return domain.ProviderStripe
}

func (s *Stripe) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, unavailable(domain.ProviderStripe, err)
	}
	// новый intent всегда ждёт подтверждения на клиенте
	return &Intent{Reference: pi.ID, Status: StatusPending, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) FetchStatus(ctx context.Context, ref string) (Status, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return "", unavailable(domain.ProviderStripe, err)
	}
	return stripeStatus(pi.Status), nil
}

func (s *Stripe) Capture(ctx context.Context, ref string) (Status, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Capture(ref, params)
	if err != nil {
		return "", unavailable(domain.ProviderStripe, err)
	}
	return stripeStatus(pi.Status), nil
}

func (s *Stripe) ParseWebhook(_ context.Context, payload []byte, headers http.Header) (*Event, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret is not configured", domain.ErrInvalidSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, headers.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                stripeSignatureTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		if isStripeSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return nil, domain.Invalid("stripe event: %v", err)
	}

	var st Status
	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		st = StatusSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		st = StatusFailed
	case stripe.EventTypePaymentIntentAmountCapturableUpdated:
		st = StatusApproved
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if ev.Data == nil || json.Unmarshal(ev.Data.Raw, &pi) != nil || pi.ID == "" {
		return nil, domain.Invalid("stripe event %s without payment intent id", ev.Type)
	}
	return &Event{Type: string(ev.Type), Reference: pi.ID, Status: st}, nil
}

func isStripeSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// SignStripePayload builds the Stripe-Signature header Stripe would send for payload at t.
func SignStripePayload(secret string, payload []byte, t time.Time) string {
	sig := webhook.ComputeSignature(t, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(sig))
}

func stripeStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusApproved
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

// minorUnits converts 49.99 into 4999.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
