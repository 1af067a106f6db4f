package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	mockdb "github.com/SwiftFiat/SwiftFiat-Settlement/db/mock"
	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/lightning"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	activitylogs "github.com/SwiftFiat/SwiftFiat-Settlement/services/activity_logs"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/currency"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/lock"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/notification"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/payment"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/security"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey    = "test-signing-key"
	testCallbackToken = "cb-0123456789abcdef"
	callbackPath      = "/api/v1/payments/callback/mpesa/" + testCallbackToken
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubNode struct {
	payErr error
	pays   int
}

func (n *stubNode) CreateInvoice(_ context.Context, amount btcutil.Amount, _ string, expiry time.Duration) (*lightning.Invoice, error) {
	return &lightning.Invoice{PaymentRequest: "lnbc1stub", PaymentHash: "abcd", AmountSats: int64(amount), ExpiresAt: time.Now().Add(expiry)}, nil
}

func (n *stubNode) PayInvoice(context.Context, string) (*lightning.Payment, error) {
	n.pays++
	if n.payErr != nil {
		return nil, n.payErr
	}
	return &lightning.Payment{Success: true, PaymentHash: "abcd", Preimage: "ef"}, nil
}

type stubGateway struct{}

func (stubGateway) InitiateSTKPush(context.Context, mobilemoney.STKPushParams) (*mobilemoney.STKPushResponse, error) {
	return &mobilemoney.STKPushResponse{CheckoutRequestID: "ws_api", MerchantRequestID: "mr_api", ResponseCode: "0"}, nil
}

type testServer struct {
	server *Server
	store  *mockdb.Store
	node   *stubNode
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := &utils.Config{SigningKey: testSigningKey, ServerPort: 8080, MpesaCallbackToken: testCallbackToken}
	logger := logging.NewNopLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	store := mockdb.New()
	cache := security.NewCache()
	t.Cleanup(func() { _ = cache.Stop() })
	audit := activitylogs.NewActivityLog(store, logger)
	wallets := wallet.NewWalletService(store, cache, audit, logger, m, time.Minute)
	refs, err := payment.NewReferenceEncoder("salt")
	require.NoError(t, err)

	node := &stubNode{}
	payments := payment.NewPaymentService(payment.Dependencies{
		Store:      store,
		Locker:     lock.NewLocker(client, logger, m),
		Wallets:    wallets,
		Currency:   currency.NewCurrencyService(currency.StaticRateSource{"KES": decimal.NewFromInt(13_500_000), "USD": decimal.NewFromInt(100_000)}, logger),
		Node:       node,
		Gateway:    stubGateway{},
		Notifier:   notification.NewLogNotifier(logger),
		References: refs,
		Logger:     logger,
		Metrics:    m,
	}, payment.Config{})

	server := NewServer(config, logger, Services{
		Payments: payments,
		Wallets:  wallets,
		Audit:    audit,
		Gatherer: reg,
	})
	return &testServer{server: server, store: store, node: node}
}

// bearer signs a token the way the identity service does.
func (ts *testServer) bearer(t *testing.T, userID int64, role string) string {
	t.Helper()
	claims := utils.AccessClaims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
		UserID:         userID,
		Role:           role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			payload.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&payload).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 1, "")
	rec := ts.do(t, http.MethodPost, "/api/v1/payments", auth, map[string]interface{}{
		"amount":       "100",
		"currency":     "KES",
		"phone_number": "0712345678",
		"payee":        "Duka",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no wallet yet")

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_payments_initiated_total{result="error"} 1`)
	assert.Contains(t, rec.Body.String(), `test_lock_acquisitions_total{result="acquired"} 1`)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/wallets/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/balance", "Token abc", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/balance", "Bearer not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 7, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/wallets/balance", auth, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{"type": "business"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		UserID int64  `json:"user_id"`
		Type   string `json:"type"`
	}
	decode(t, rec, &created)
	assert.Equal(t, int64(7), created.UserID)
	assert.Equal(t, "business", created.Type)

	rec = ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "second wallet is rejected")

	rec = ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{"type": "checking"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/wallets/settings", auth, map[string]string{"lightning_address": "me@ln.example"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/balance", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance      decimal.Decimal `json:"balance"`
		TotalBalance decimal.Decimal `json:"total_balance"`
	}
	decode(t, rec, &balance)
	assert.True(t, balance.Balance.IsZero())

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/stats?days=45", auth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/stats?days=7", auth, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/transactions?status=BOGUS", auth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 42, "")
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{}).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/payments", auth, map[string]interface{}{
		"amount":       "1000",
		"currency":     "KES",
		"phone_number": "0712345678",
		"payee":        "Duka",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var initiated struct {
		TransactionID     uuid.UUID `json:"transaction_id"`
		CheckoutRequestID string    `json:"checkout_request_id"`
		PaymentRequest    string    `json:"payment_request"`
		Status            string    `json:"status"`
	}
	decode(t, rec, &initiated)
	assert.Equal(t, "ws_api", initiated.CheckoutRequestID)
	assert.Equal(t, "lnbc1stub", initiated.PaymentRequest)
	assert.Equal(t, db.TransactionStatusProcessing, initiated.Status)

	callback := `{"Body":{"stkCallback":{"MerchantRequestID":"mr_api","CheckoutRequestID":"ws_api","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1000},{"Name":"MpesaReceiptNumber","Value":"QAB1CD2EF3"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`
	for i := 0; i < 2; i++ {
		rec = ts.do(t, http.MethodPost, callbackPath, "", callback)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
	}
	assert.Equal(t, 1, ts.node.pays, "redelivered callback must not pay twice")

	rec = ts.do(t, http.MethodGet, "/api/v1/payments/"+initiated.TransactionID.String(), auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txn struct {
		Status             string  `json:"status"`
		MpesaReceiptNumber string  `json:"mpesa_receipt_number"`
		CompletedAt        *string `json:"completed_at"`
	}
	decode(t, rec, &txn)
	assert.Equal(t, db.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "QAB1CD2EF3", txn.MpesaReceiptNumber)
	assert.NotNil(t, txn.CompletedAt)

	rec = ts.do(t, http.MethodGet, "/api/v1/payments/"+initiated.TransactionID.String(), ts.bearer(t, 99, ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot read the transaction")

	rec = ts.do(t, http.MethodPost, "/api/v1/payments/"+initiated.TransactionID.String()+"/cancel", auth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "completed transactions cannot be cancelled")

	rec = ts.do(t, http.MethodGet, "/api/v1/wallets/transactions", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Total        int64 `json:"total"`
		Transactions []struct {
			Status string `json:"status"`
		} `json:"transactions"`
	}
	decode(t, rec, &history)
	assert.Equal(t, int64(1), history.Total)
	require.Len(t, history.Transactions, 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/activitylogs", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []map[string]interface{}
	decode(t, rec, &logs)
	assert.Len(t, logs, 2, "wallet creation and settlement credit")
}

func TestInitiateRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 42, "")
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{}).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/payments", auth, map[string]interface{}{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/payments", auth, map[string]interface{}{
		"amount":       "-10",
		"currency":     "KES",
		"phone_number": "0712345678",
		"payee":        "Duka",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackAlwaysAcknowledges(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`not json`,
		`{"ResultCode":0,"CheckoutRequestID":"ws_unknown","ResultDesc":"ok"}`,
	} {
		rec := ts.do(t, http.MethodPost, callbackPath, "", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
	}
	assert.Zero(t, ts.node.pays)
}

func TestCallbackRejectsWrongToken(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 42, "")
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/wallets", auth, map[string]string{}).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/payments", auth, map[string]interface{}{
		"amount":       "1000",
		"currency":     "KES",
		"phone_number": "0712345678",
		"payee":        "Duka",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var initiated struct {
		TransactionID uuid.UUID `json:"transaction_id"`
	}
	decode(t, rec, &initiated)

	// A payer who learned their own checkout id reports success themselves.
	forged := `{"ResultCode":0,"CheckoutRequestID":"ws_api","ResultDesc":"ok","MpesaReceiptNumber":"FAKE000001","Amount":1000}`
	for _, path := range []string{
		"/api/v1/payments/callback/mpesa/guessed-token-value",
		"/api/v1/payments/callback/mpesa/" + testCallbackToken[:len(testCallbackToken)-1],
	} {
		rec = ts.do(t, http.MethodPost, path, "", forged)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/payments/callback/mpesa", "", forged)
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.Zero(t, ts.node.pays)

	txn, err := ts.store.GetTransaction(context.Background(), initiated.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, db.TransactionStatusProcessing, txn.Status)
	assert.False(t, txn.SettlementStartedAt.Valid)
}

func TestCancelPendingTransaction(t *testing.T) {
	ts := newTestServer(t)
	auth := ts.bearer(t, 42, "")
	id := uuid.New()
	ts.store.PutTransaction(db.Transaction{ID: id, UserID: 42, Status: db.TransactionStatusPending, Amount: "5", Currency: "USD"})

	rec := ts.do(t, http.MethodPost, "/api/v1/payments/not-a-uuid/cancel", auth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/payments/"+id.String()+"/cancel", auth, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var txn struct {
		Status string `json:"status"`
	}
	decode(t, rec, &txn)
	assert.Equal(t, db.TransactionStatusCancelled, txn.Status)
}

func TestActivityLogsForOtherUsersNeedAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/activitylogs/5", ts.bearer(t, 1, ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/activitylogs/5", ts.bearer(t, 1, "admin"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
