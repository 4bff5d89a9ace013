package payment

import (
	"context"

	"github.com/waste3d/courseplatform-api/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Manual records bank transfers and similar offline payments. Nothing settles on its
// own; an administrator confirms the purchase once the money has arrived.
type Manual struct{}

func NewManual() *Manual {
	return &Manual{}
}

func (Manual) Name() domain.Provider {
	return domain.ProviderManual
}

func (Manual) CreatePayment(_ context.Context, _ decimal.Decimal, _ string, _ map[string]string) (*Intent, error) {
	return &Intent{Reference: "man_" + uuid.NewString(), Status: StatusPending}, nil
}

func (Manual) FetchStatus(_ context.Context, _ string) (Status, error) {
	return StatusPending, nil
}
