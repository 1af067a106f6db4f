package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InitiatePaymentRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency" binding:"required"`
	PhoneNumber string                 `json:"phone_number" binding:"required"`
	Payee       string                 `json:"payee" binding:"required"`
	Description string                 `json:"description"`
	MerchantID  string                 `json:"merchant_id"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type InitiatePaymentResponse struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	PaymentRequest    string    `json:"payment_request"`
	PaymentHash       string    `json:"payment_hash"`
	AmountSats        int64     `json:"amount_sats"`
	Reference         string    `json:"reference"`
	ExpiresAt         time.Time `json:"expires_at"`
	Status            string    `json:"status"`
}

// CallbackAck is the body M-Pesa expects back from a callback URL.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type TransactionResponse struct {
	ID                     uuid.UUID       `json:"id"`
	UserID                 int64           `json:"user_id"`
	MerchantID             string          `json:"merchant_id,omitempty"`
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	AmountSats             int64           `json:"amount_sats"`
	PaymentMethod          string          `json:"payment_method"`
	Description            string          `json:"description,omitempty"`
	Payee                  string          `json:"payee"`
	Status                 string          `json:"status"`
	PaymentRequest         string          `json:"payment_request,omitempty"`
	PaymentHash            string          `json:"payment_hash,omitempty"`
	LightningFeeSats       int64           `json:"lightning_fee_sats"`
	CheckoutRequestID      string          `json:"checkout_request_id,omitempty"`
	MpesaReceiptNumber     string          `json:"mpesa_receipt_number,omitempty"`
	ErrorMessage           string          `json:"error_message,omitempty"`
	ReconciliationRequired bool            `json:"reconciliation_required"`
	Metadata               json.RawMessage `json:"metadata,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
}
