package lightning

import (
	"fmt"
	"time"
)

type LndConfig struct {
	RestURL       string        `mapstructure:"LND_REST_URL"`
	MacaroonHex   string        `mapstructure:"LND_MACAROON_HEX"`
	TLSCertPath   string        `mapstructure:"LND_TLS_CERT_PATH"`
	Timeout       time.Duration `mapstructure:"LND_TIMEOUT"`
	FeeLimitSats  int64         `mapstructure:"LND_FEE_LIMIT_SATS"`
}

type addInvoiceRequest struct {
	Value  int64  `json:"value,string"`
	Memo   string `json:"memo"`
	Expiry int64  `json:"expiry,string"`
}

type addInvoiceResponse struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AddIndex       string `json:"add_index"`
}

type feeLimit struct {
	Fixed int64 `json:"fixed,string"`
}

type sendPaymentRequest struct {
	PaymentRequest string    `json:"payment_request"`
	FeeLimit       *feeLimit `json:"fee_limit,omitempty"`
}

type paymentRoute struct {
	TotalFees     int64 `json:"total_fees,string"`
	TotalFeesMsat int64 `json:"total_fees_msat,string"`
}

type sendPaymentResponse struct {
	PaymentError    string        `json:"payment_error"`
	PaymentPreimage string        `json:"payment_preimage"`
	PaymentHash     string        `json:"payment_hash"`
	PaymentRoute    *paymentRoute `json:"payment_route"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Invoice is a payment request issued by the node. PaymentHash is hex.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	AmountSats     int64
	ExpiresAt      time.Time
}

// Payment is the outcome of paying an invoice. Hash and preimage are hex.
type Payment struct {
	Success     bool
	PaymentHash string
	Preimage    string
	FeeSats     int64
}

// Error is any failure reported by or while talking to the node.
type Error struct {
	Op         string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lightning %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("lightning %s: %s", e.Op, e.Message)
}
