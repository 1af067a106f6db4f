package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const (
	TransactionStatusPending    = "PENDING"
	TransactionStatusProcessing = "PROCESSING"
	TransactionStatusCompleted  = "COMPLETED"
	TransactionStatusFailed     = "FAILED"
	TransactionStatusCancelled  = "CANCELLED"
)

type AuditLog struct {
	ID        int64                 `json:"id"`
	UserID    int64                 `json:"user_id"`
	Action    string                `json:"action"`
	Details   pqtype.NullRawMessage `json:"details"`
	CreatedAt time.Time             `json:"created_at"`
}

type Transaction struct {
	ID                     uuid.UUID             `json:"id"`
	ReferenceNo            int64                 `json:"reference_no"`
	UserID                 int64                 `json:"user_id"`
	MerchantID             sql.NullString        `json:"merchant_id"`
	Amount                 string                `json:"amount"`
	Currency               string                `json:"currency"`
	AmountSats             int64                 `json:"amount_sats"`
	PaymentMethod          string                `json:"payment_method"`
	Description            string                `json:"description"`
	Payee                  string                `json:"payee"`
	PhoneNumber            string                `json:"phone_number"`
	Metadata               pqtype.NullRawMessage `json:"metadata"`
	LightningInvoice       sql.NullString        `json:"lightning_invoice"`
	LightningPaymentHash   sql.NullString        `json:"lightning_payment_hash"`
	LightningPreimage      sql.NullString        `json:"lightning_preimage"`
	LightningFeeSats       int64                 `json:"lightning_fee_sats"`
	MpesaCheckoutRequestID sql.NullString        `json:"mpesa_checkout_request_id"`
	MpesaMerchantRequestID sql.NullString        `json:"mpesa_merchant_request_id"`
	MpesaReceiptNumber     sql.NullString        `json:"mpesa_receipt_number"`
	MpesaAmount            int64                 `json:"mpesa_amount"`
	Status                 string                `json:"status"`
	ErrorMessage           sql.NullString        `json:"error_message"`
	ReconciliationRequired bool                  `json:"reconciliation_required"`
	SettlementStartedAt    sql.NullTime          `json:"settlement_started_at"`
	CreatedAt              time.Time             `json:"created_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
	CompletedAt            sql.NullTime          `json:"completed_at"`
}

type Wallet struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             int64          `json:"user_id"`
	Type               string         `json:"type"`
	LightningAddress   sql.NullString `json:"lightning_address"`
	Balance            string         `json:"balance"`
	ConfirmedBalance   string         `json:"confirmed_balance"`
	UnconfirmedBalance string         `json:"unconfirmed_balance"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
