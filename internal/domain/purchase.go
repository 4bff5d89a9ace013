package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseFailed    PurchaseStatus = "FAILED"
)

// Terminal reports whether no provider report may change the status any more.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted
}

// Provider names the payment network whose adapter issued ProviderRef.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
	ProviderManual Provider = "manual"
)

// Purchase is the ledger row. There is exactly one row per (user, course);
// retries reissue the provider reference on the same row and keep the old one
// as a PurchaseAttempt.
type Purchase struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_purchases_user_course,priority:1"`
	CourseID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_purchases_user_course,priority:2"`
	Course        *Course         `gorm:"foreignKey:CourseID"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	Status        PurchaseStatus  `gorm:"size:16;not null;index"`
	Provider      Provider        `gorm:"size:16;not null"`
	ProviderRef   string          `gorm:"size:191;uniqueIndex;not null"`
	TransactionID string          `gorm:"size:32;uniqueIndex;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseAttempt records every provider reference ever issued for a Purchase, so a
// payment on a superseded intent still settles the row.
type PurchaseAttempt struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PurchaseID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Provider      Provider        `gorm:"size:16;not null"`
	ProviderRef   string          `gorm:"size:191;uniqueIndex;not null"`
	TransactionID string          `gorm:"size:32;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	CreatedAt     time.Time
}

// NewTransactionID returns the human-facing identifier shown on receipts.
func NewTransactionID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN_" + strings.ToUpper(raw[:16])
}
