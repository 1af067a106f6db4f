package mobilemoney

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	TransactionTypePayBill   = "CustomerPayBillOnline"
	TransactionTypeBuyGoods  = "CustomerBuyGoodsOnline"
	timestampLayout          = "20060102150405"
	maxAccountReferenceChars = 12
	maxDescriptionChars      = 13
)

type MpesaConfig struct {
	Environment     string        `mapstructure:"MPESA_ENVIRONMENT"`
	BaseURL         string        `mapstructure:"MPESA_BASE_URL"`
	ConsumerKey     string        `mapstructure:"MPESA_CONSUMER_KEY"`
	ConsumerSecret  string        `mapstructure:"MPESA_CONSUMER_SECRET"`
	ShortCode       string        `mapstructure:"MPESA_SHORTCODE"`
	PassKey         string        `mapstructure:"MPESA_PASSKEY"`
	CallbackURL     string        `mapstructure:"MPESA_CALLBACK_URL"`
	TransactionType string        `mapstructure:"MPESA_TRANSACTION_TYPE"`
	Timeout         time.Duration `mapstructure:"MPESA_TIMEOUT"`

	// CallbackToken is appended to CallbackURL as its last path segment.
	CallbackToken string `mapstructure:"-"`
}

func (c *MpesaConfig) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	if c.Environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c *MpesaConfig) callbackURL() string {
	if c.CallbackToken == "" {
		return c.CallbackURL
	}
	return strings.TrimSuffix(c.CallbackURL, "/") + "/" + url.PathEscape(c.CallbackToken)
}

func (c *MpesaConfig) transactionType() string {
	if c.TransactionType == "" {
		return TransactionTypePayBill
	}
	return c.TransactionType
}

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type ErrorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKCallbackEnvelope is the body Daraja posts to the callback URL.
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        json.Number       `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// CallbackResult is a collection outcome reduced to the fields settlement
// needs. ResultCode 0 means the payer authorised the debit.
type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
	Amount            string
	PhoneNumber       string
}

func (r *CallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}

// STKPushParams describes one collection request.
type STKPushParams struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	Description      string
}

// MpesaError is a non-success answer from the gateway.
type MpesaError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *MpesaError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa %s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("mpesa %s: %s", e.Op, e.Message)
}
