package payment

import (
	"context"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/lightning"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/lock"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentMethodMpesaLightning = "mpesa_lightning"
	CollectionCurrency          = "KES"

	DefaultLockTTL       = 30 * time.Second
	DefaultInvoiceExpiry = time.Hour
	DefaultStaleAfter    = 15 * time.Minute
)

// LightningNode issues and pays invoices.
type LightningNode interface {
	CreateInvoice(ctx context.Context, amount btcutil.Amount, memo string, expiry time.Duration) (*lightning.Invoice, error)
	PayInvoice(ctx context.Context, paymentRequest string) (*lightning.Payment, error)
}

// MobileMoneyGateway requests collections from a payer's handset.
type MobileMoneyGateway interface {
	InitiateSTKPush(ctx context.Context, params mobilemoney.STKPushParams) (*mobilemoney.STKPushResponse, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lock, bool, error)
}

type Config struct {
	LockTTL       time.Duration
	InvoiceExpiry time.Duration
	// StaleAfter is how long a transaction may sit in PENDING before the
	// sweeper fails it. It must comfortably exceed the slowest initiation.
	StaleAfter  time.Duration
	SMSReceipts bool
}

type InitiateRequest struct {
	UserID      int64                  `json:"user_id" validate:"required,gt=0"`
	Amount      decimal.Decimal        `json:"amount" validate:"gt=0"`
	Currency    string                 `json:"currency" validate:"required,oneof=KES USD"`
	PhoneNumber string                 `json:"phone_number" validate:"required,min=9,max=16"`
	Payee       string                 `json:"payee" validate:"required,max=100"`
	Description string                 `json:"description" validate:"max=255"`
	MerchantID  string                 `json:"merchant_id" validate:"omitempty,max=64"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type InitiateResult struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	PaymentRequest    string    `json:"payment_request"`
	PaymentHash       string    `json:"payment_hash"`
	AmountSats        int64     `json:"amount_sats"`
	Reference         string    `json:"reference"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Settlement outcomes reported by Complete.
const (
	OutcomeCompleted      = "completed"
	OutcomeFailed         = "failed"
	OutcomeReconciliation = "reconciliation_required"
	OutcomeDuplicate      = "duplicate"
	OutcomeUnknown        = "unknown_transaction"
)
