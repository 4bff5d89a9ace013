package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	PayPalSandboxURL = "https://api-m.sandbox.paypal.com"
	PayPalLiveURL    = "https://api-m.paypal.com"
)

var errOrderAlreadyCaptured = errors.New("order already captured")

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Mode         string // sandbox | live
	WebhookID    string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
	BaseURL      string // overrides Mode when set
}

// PayPal drives the Orders v2 API: create, buyer approves on paypal.com, capture.
type PayPal struct {
	cfg     PayPalConfig
	baseURL string
	client  *http.Client
}

func NewPayPal(cfg PayPalConfig) *PayPal {
	base := cfg.BaseURL
	if base == "" {
		base = PayPalSandboxURL
		if cfg.Mode == "live" {
			base = PayPalLiveURL
		}
	}
	base = strings.TrimRight(base, "/")

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// токен запрашивается тем же клиентом с таймаутом
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	client := cc.Client(tokenCtx)
	client.Timeout = cfg.Timeout

	return &PayPal{cfg: cfg, baseURL: base, client: client}
}

func (p *PayPal) Name() domain.Provider {
	return domain.ProviderPayPal
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []paypalLink `json:"links"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalCreateOrder struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
		CancelURL string `json:"cancel_url,omitempty"`
	} `json:"application_context"`
}

func (p *PayPal) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: metadata["course_id"],
			CustomID:    metadata["transaction_id"],
			Description: metadata["course_name"],
			Amount: paypalAmount{
				CurrencyCode: strings.ToUpper(currency),
				Value:        amount.StringFixed(2),
			},
		}},
	}
	body.ApplicationContext.ReturnURL = p.cfg.ReturnURL
	body.ApplicationContext.CancelURL = p.cfg.CancelURL

	var order paypalOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return nil, err
	}

	intent := &Intent{Reference: order.ID, Status: paypalStatus(order.Status)}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			intent.ApproveURL = l.Href
			break
		}
	}
	if intent.ApproveURL == "" {
		return nil, unavailable(domain.ProviderPayPal, fmt.Errorf("order %s has no approve link", order.ID))
	}
	return intent, nil
}

func (p *PayPal) FetchStatus(ctx context.Context, ref string) (Status, error) {
	var order paypalOrder
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(ref), nil, &order); err != nil {
		return "", err
	}
	return paypalStatus(order.Status), nil
}

func (p *PayPal) Capture(ctx context.Context, ref string) (Status, error) {
	var order paypalOrder
	err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(ref)+"/capture", struct{}{}, &order)
	if errors.Is(err, errOrderAlreadyCaptured) {
		return p.FetchStatus(ctx, ref)
	}
	if err != nil {
		return "", err
	}
	return paypalStatus(order.Status), nil
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

func (p *PayPal) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable(domain.ProviderPayPal, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(domain.ProviderPayPal, err)
	}
	if resp.StatusCode >= 300 {
		var pe paypalError
		_ = json.Unmarshal(raw, &pe)
		for _, d := range pe.Details {
			if d.Issue == "ORDER_ALREADY_CAPTURED" {
				return errOrderAlreadyCaptured
			}
		}
		return unavailable(domain.ProviderPayPal, fmt.Errorf("status %d: %s %s", resp.StatusCode, pe.Name, pe.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return unavailable(domain.ProviderPayPal, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseWebhook asks PayPal itself whether the transmission is authentic.
func (p *PayPal) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*Event, error) {
	if p.cfg.WebhookID == "" {
		return nil, fmt.Errorf("%w: paypal webhook id is not configured", domain.ErrInvalidSignature)
	}
	verify := paypalVerifyRequest{
		AuthAlgo:         headers.Get("Paypal-Auth-Algo"),
		CertURL:          headers.Get("Paypal-Cert-Url"),
		TransmissionID:   headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: headers.Get("Paypal-Transmission-Time"),
		WebhookID:        p.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(payload),
	}
	if verify.AuthAlgo == "" || verify.CertURL == "" || verify.TransmissionID == "" ||
		verify.TransmissionSig == "" || verify.TransmissionTime == "" {
		return nil, fmt.Errorf("%w: missing paypal transmission headers", domain.ErrInvalidSignature)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not json", domain.ErrInvalidSignature)
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verify, &result); err != nil {
		return nil, err
	}
	if result.VerificationStatus != "SUCCESS" {
		return nil, fmt.Errorf("%w: paypal verification %s", domain.ErrInvalidSignature, result.VerificationStatus)
	}

	var ev paypalEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.Invalid("paypal event: %v", err)
	}

	out := &Event{Type: ev.EventType}
	switch ev.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		out.Reference, out.Status = ev.Resource.ID, StatusApproved
	case "CHECKOUT.ORDER.VOIDED":
		out.Reference, out.Status = ev.Resource.ID, StatusFailed
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Reference, out.Status = ev.Resource.SupplementaryData.RelatedIDs.OrderID, StatusSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		out.Reference, out.Status = ev.Resource.SupplementaryData.RelatedIDs.OrderID, StatusFailed
	default:
		return nil, nil
	}
	if out.Reference == "" {
		return nil, domain.Invalid("paypal event %s without order id", ev.EventType)
	}
	return out, nil
}

func paypalStatus(s string) Status {
	switch s {
	case "COMPLETED":
		return StatusSucceeded
	case "APPROVED":
		return StatusApproved
	case "VOIDED":
		return StatusFailed
	default:
		return StatusPending
	}
}
