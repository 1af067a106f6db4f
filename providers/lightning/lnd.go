package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/providers"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/sirupsen/logrus"
)

// LndProvider talks to an LND node over its REST gateway.
type LndProvider struct {
	providers.BaseProvider
	config *LndConfig
	now    func() time.Time
}

func LoadLndConfig() (*LndConfig, error) {
	var c LndConfig
	if err := utils.LoadCustomConfig(utils.EnvPath, &c); err != nil {
		return nil, fmt.Errorf("could not load lnd config: %w", err)
	}
	return &c, nil
}

func NewLndProvider(c *LndConfig, logger *logging.Logger, m *metrics.Metrics) (*LndProvider, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := providers.NewBaseProvider(providers.Lightning, strings.TrimSuffix(c.RestURL, "/"), "", timeout, logger, m)

	if c.TLSCertPath != "" {
		pem, err := os.ReadFile(c.TLSCertPath)
		if err != nil {
			return nil, fmt.Errorf("could not read lnd tls cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("lnd tls cert at %s is not valid PEM", c.TLSCertPath)
		}
		base.Client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		}
	}

	return &LndProvider{
		BaseProvider: base,
		config:       c,
		now:          time.Now,
	}, nil
}

func (p *LndProvider) headers() map[string]string {
	return map[string]string{"Grpc-Metadata-macaroon": p.config.MacaroonHex}
}

// CreateInvoice asks the node for a payment request of amount satoshis.
func (p *LndProvider) CreateInvoice(ctx context.Context, amount btcutil.Amount, memo string, expiry time.Duration) (*Invoice, error) {
	if amount <= 0 {
		return nil, &Error{Op: "create_invoice", Message: "amount must be positive"}
	}

	resp, err := p.MakeRequest(ctx, http.MethodPost, p.BaseURL+"/v1/invoices", addInvoiceRequest{
		Value:  int64(amount),
		Memo:   memo,
		Expiry: int64(expiry / time.Second),
	}, p.headers())
	if err != nil {
		return nil, &Error{Op: "create_invoice", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.decodeError(resp, "create_invoice")
	}

	var added addInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return nil, &Error{Op: "create_invoice", Message: "error decoding response body: " + err.Error()}
	}
	if added.PaymentRequest == "" {
		return nil, &Error{Op: "create_invoice", Message: "node returned no payment request"}
	}

	invoice := &Invoice{
		PaymentRequest: added.PaymentRequest,
		PaymentHash:    base64ToHex(added.RHash),
		AmountSats:     int64(amount),
		ExpiresAt:      p.now().Add(expiry),
	}

	p.Logger.WithFields(logrus.Fields{
		"payment_hash": invoice.PaymentHash,
		"amount_sats":  invoice.AmountSats,
	}).Info("lightning invoice created")

	return invoice, nil
}

// PayInvoice pays paymentRequest synchronously. A route failure reported in
// the response body is returned as an *Error, not as an unsuccessful Payment.
func (p *LndProvider) PayInvoice(ctx context.Context, paymentRequest string) (*Payment, error) {
	request := sendPaymentRequest{PaymentRequest: paymentRequest}
	if p.config.FeeLimitSats > 0 {
		request.FeeLimit = &feeLimit{Fixed: p.config.FeeLimitSats}
	}

	resp, err := p.MakeRequest(ctx, http.MethodPost, p.BaseURL+"/v1/channels/transactions", request, p.headers())
	if err != nil {
		return nil, &Error{Op: "pay_invoice", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.decodeError(resp, "pay_invoice")
	}

	var sent sendPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return nil, &Error{Op: "pay_invoice", Message: "error decoding response body: " + err.Error()}
	}
	if sent.PaymentError != "" {
		return nil, &Error{Op: "pay_invoice", Message: sent.PaymentError, StatusCode: resp.StatusCode}
	}

	payment := &Payment{
		Success:     true,
		PaymentHash: base64ToHex(sent.PaymentHash),
		Preimage:    base64ToHex(sent.PaymentPreimage),
	}
	if sent.PaymentRoute != nil {
		payment.FeeSats = sent.PaymentRoute.TotalFees
	}

	p.Logger.WithFields(logrus.Fields{
		"payment_hash": payment.PaymentHash,
		"fee_sats":     payment.FeeSats,
	}).Info("lightning invoice paid")

	return payment, nil
}

func (p *LndProvider) decodeError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	lErr := &Error{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var nodeErr errorResponse
	if json.Unmarshal(body, &nodeErr) == nil {
		switch {
		case nodeErr.Message != "":
			lErr.Message = nodeErr.Message
		case nodeErr.Error != "":
			lErr.Message = nodeErr.Error
		}
	}

	p.Logger.WithFields(logrus.Fields{
		"op":     op,
		"status": resp.StatusCode,
		"error":  lErr.Message,
	}).Error("lnd request failed")
	return lErr
}

// base64ToHex converts the base64 byte fields of the REST gateway to the hex
// form used everywhere else. Values that are not base64 are returned as is.
func base64ToHex(s string) string {
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return hex.EncodeToString(raw)
}
