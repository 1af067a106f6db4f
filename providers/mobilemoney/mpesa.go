package mobilemoney

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/sirupsen/logrus"
)

var (
	ErrMalformedCallback  = errors.New("malformed mpesa callback")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

type MpesaProvider struct {
	providers.BaseProvider
	config *MpesaConfig
	tokens *TokenManager
	now    func() time.Time
}

// LoadMpesaConfig reads the MPESA_* keys next to the service configuration.
func LoadMpesaConfig() (*MpesaConfig, error) {
	var c MpesaConfig
	if err := utils.LoadCustomConfig(utils.EnvPath, &c); err != nil {
		return nil, fmt.Errorf("could not load mpesa config: %w", err)
	}
	return &c, nil
}

func NewMpesaProvider(c *MpesaConfig, cache redis.KeyValue, logger *logging.Logger, m *metrics.Metrics) *MpesaProvider {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &MpesaProvider{
		BaseProvider: providers.NewBaseProvider(providers.Mpesa, c.baseURL(), "", timeout, logger, m),
		config:       c,
		now:          time.Now,
	}
	p.tokens = NewTokenManager(&p.BaseProvider, cache, c.ConsumerKey, c.ConsumerSecret)
	return p
}

func (p *MpesaProvider) Tokens() *TokenManager {
	return p.tokens
}

// Password derives the STK password for the given timestamp.
func (p *MpesaProvider) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(p.config.ShortCode + p.config.PassKey + timestamp))
}

// InitiateSTKPush prompts the payer's handset to authorise the collection.
// A 401 from the gateway invalidates the cached token once and is returned
// as an authentication error; the push is not retried.
func (p *MpesaProvider) InitiateSTKPush(ctx context.Context, params STKPushParams) (*STKPushResponse, error) {
	phone, err := NormalizePhoneNumber(params.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if params.Amount < 1 {
		return nil, fmt.Errorf("stk push amount must be at least 1, got %d", params.Amount)
	}

	token, err := p.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := p.now().Format(timestampLayout)
	request := STKPushRequest{
		BusinessShortCode: p.config.ShortCode,
		Password:          p.Password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   p.config.transactionType(),
		Amount:            params.Amount,
		PartyA:            phone,
		PartyB:            p.config.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       p.config.callbackURL(),
		AccountReference:  truncate(params.AccountReference, maxAccountReferenceChars),
		TransactionDesc:   truncate(params.Description, maxDescriptionChars),
	}

	resp, err := p.MakeRequest(ctx, http.MethodPost, p.BaseURL+"/mpesa/stkpush/v1/processrequest", request, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if invErr := p.tokens.Invalidate(ctx); invErr != nil {
			p.Logger.WithField("error", invErr.Error()).Warn("could not invalidate mpesa token")
		}
		return nil, models.NewAuthenticationError("mpesa rejected access token", p.decodeError(resp, "stkpush"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.decodeError(resp, "stkpush")
	}

	var stk STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&stk); err != nil {
		return nil, fmt.Errorf("error decoding response body: %w", err)
	}
	if stk.ResponseCode != "0" || stk.CheckoutRequestID == "" {
		return nil, &MpesaError{
			Op:         "stkpush",
			StatusCode: resp.StatusCode,
			Code:       stk.ResponseCode,
			Message:    stk.ResponseDescription,
		}
	}

	p.Logger.WithFields(logrus.Fields{
		"checkout_request_id": stk.CheckoutRequestID,
		"merchant_request_id": stk.MerchantRequestID,
		"account_reference":   request.AccountReference,
	}).Info("stk push accepted")

	return &stk, nil
}

func (p *MpesaProvider) decodeError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	mErr := &MpesaError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var gatewayErr ErrorResponse
	if json.Unmarshal(body, &gatewayErr) == nil && gatewayErr.ErrorMessage != "" {
		mErr.Code = gatewayErr.ErrorCode
		mErr.Message = gatewayErr.ErrorMessage
	}

	p.Logger.WithFields(logrus.Fields{
		"op":     op,
		"status": resp.StatusCode,
		"body":   string(body),
	}).Error("mpesa request failed")
	return mErr
}

// ParseSTKCallback accepts both the Daraja envelope
// {"Body":{"stkCallback":{...}}} and a flat {"ResultCode":..,"CheckoutRequestID":..}.
func ParseSTKCallback(payload []byte) (*CallbackResult, error) {
	var envelope STKCallbackEnvelope
	if err := decodeNumbers(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		if err := decodeNumbers(payload, &cb); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
	}
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	code, err := strconv.Atoi(cb.ResultCode.String())
	if err != nil {
		return nil, fmt.Errorf("%w: ResultCode %q", ErrMalformedCallback, cb.ResultCode.String())
	}

	result := &CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			switch item.Name {
			case "MpesaReceiptNumber":
				result.ReceiptNumber = itemString(item.Value)
			case "Amount":
				result.Amount = itemString(item.Value)
			case "PhoneNumber":
				result.PhoneNumber = itemString(item.Value)
			}
		}
	}
	return result, nil
}

func decodeNumbers(payload []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec.Decode(v)
}

func itemString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// NormalizePhoneNumber converts Kenyan MSISDNs ("07..", "+2547..", "2547..")
// to the 2547XXXXXXXX form the gateway expects.
func NormalizePhoneNumber(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	phone = strings.ReplaceAll(phone, " ", "")

	switch {
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		phone = "254" + phone[1:]
	case (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")) && len(phone) == 9:
		phone = "254" + phone
	}

	if len(phone) != 12 || !strings.HasPrefix(phone, "254") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, phone)
	}
	if _, err := strconv.ParseUint(phone, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, phone)
	}
	return phone, nil
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
