package payment

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/shopspring/decimal"
)

// Status is the provider-neutral state of a payment. Each adapter maps its own
// vocabulary onto these four values and nothing else leaves the adapter.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved" // authorized, still needs a capture
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Intent is what the client needs to finish paying.
type Intent struct {
	Reference    string
	Status       Status
	ClientSecret string
	ApproveURL   string
}

type Event struct {
	Type      string
	Reference string
	Status    Status
}

type Adapter interface {
	Name() domain.Provider
	CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error)
	FetchStatus(ctx context.Context, ref string) (Status, error)
}

// Capturer is implemented by networks where approval and settlement are separate steps.
type Capturer interface {
	Capture(ctx context.Context, ref string) (Status, error)
}

// WebhookVerifier authenticates and decodes a provider notification. A nil event
// with a nil error means the event type is not one the ledger cares about.
type WebhookVerifier interface {
	ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*Event, error)
}

type Registry struct {
	adapters map[domain.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name domain.Provider) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownProvider, name)
	}
	return a, nil
}

func (r *Registry) Names() []domain.Provider {
	names := make([]domain.Provider, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func unavailable(provider domain.Provider, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, provider, err)
}
