package mobilemoney

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaraja struct {
	tokenCalls int32
	pushCalls  int32
	tokenFail  bool
	pushStatus int
	expiresIn  string
	lastPush   STKPushRequest
	lastAuth   string
	mu         sync.Mutex

	tokenStarted chan struct{}
	tokenRelease chan struct{}
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		if f.tokenFail {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.tokenRelease != nil {
			f.tokenStarted <- struct{}{}
			<-f.tokenRelease
		}
		time.Sleep(10 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": f.expiresIn})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.pushCalls, 1)
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		f.mu.Unlock()
		if f.pushStatus != 0 && f.pushStatus != http.StatusOK {
			w.WriteHeader(f.pushStatus)
			_ = json.NewEncoder(w).Encode(ErrorResponse{ErrorCode: "404.001.03", ErrorMessage: "Invalid Access Token"})
			return
		}
		_ = json.NewEncoder(w).Encode(STKPushResponse{
			MerchantRequestID:   "mr_1",
			CheckoutRequestID:   "ws_123",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
		})
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeDaraja) (*MpesaProvider, *miniredis.Miniredis) {
	t.Helper()
	if f.expiresIn == "" {
		f.expiresIn = "3599"
	}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	p := NewMpesaProvider(&MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.com/callback/",
		CallbackToken:  "s3cr3t-t0ken-value",
	}, redis.NewFromClient(client), logging.NewNopLogger(), nil)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, mr
}

func TestGetTokenCachesWithMargin(t *testing.T) {
	f := &fakeDaraja{}
	p, mr := newTestProvider(t, f)
	ctx := context.Background()

	token, err := p.Tokens().GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	token, err = p.Tokens().GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))

	ttl := mr.TTL(TokenCacheKey)
	assert.Equal(t, 3599*time.Second-5*time.Minute, ttl)

	mr.FastForward(ttl + time.Second)
	_, err = p.Tokens().GetToken(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.tokenCalls))
}

func TestConcurrentTokenMissesFetchOnce(t *testing.T) {
	f := &fakeDaraja{}
	p, _ := newTestProvider(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := p.Tokens().GetToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&f.tokenCalls), int32(2))
}

func TestTokenFetchOutlivesCancelledCaller(t *testing.T) {
	f := &fakeDaraja{tokenStarted: make(chan struct{}, 1), tokenRelease: make(chan struct{})}
	p, mr := newTestProvider(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		token string
		err   error
	}
	first := make(chan result, 1)
	go func() {
		token, err := p.Tokens().GetToken(ctx)
		first <- result{token, err}
	}()
	<-f.tokenStarted

	second := make(chan result, 1)
	go func() {
		token, err := p.Tokens().GetToken(context.Background())
		second <- result{token, err}
	}()

	cancel()
	close(f.tokenRelease)

	for _, ch := range []chan result{first, second} {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, "tok-1", r.token)
	}
	assert.True(t, mr.Exists(TokenCacheKey))
}

func TestInvalidateForcesRefresh(t *testing.T) {
	f := &fakeDaraja{}
	p, mr := newTestProvider(t, f)
	ctx := context.Background()

	_, err := p.Tokens().GetToken(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Tokens().Invalidate(ctx))
	assert.False(t, mr.Exists(TokenCacheKey))

	_, err = p.Tokens().GetToken(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.tokenCalls))
}

func TestTokenEndpointFailureIsAuthenticationError(t *testing.T) {
	f := &fakeDaraja{tokenFail: true}
	p, mr := newTestProvider(t, f)

	_, err := p.Tokens().GetToken(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsAuthentication(err))
	assert.ErrorIs(t, err, ErrTokenUnavailable)
	assert.False(t, mr.Exists(TokenCacheKey))
}

func TestInitiateSTKPush(t *testing.T) {
	f := &fakeDaraja{}
	p, _ := newTestProvider(t, f)

	resp, err := p.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber:      "0712345678",
		Amount:           1000,
		AccountReference: "AbC123xyz",
		Description:      "Payment to merchant",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_123", resp.CheckoutRequestID)
	assert.Equal(t, "mr_1", resp.MerchantRequestID)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "Bearer tok-1", f.lastAuth)
	assert.Equal(t, "20260102030405", f.lastPush.Timestamp)
	expected := base64.StdEncoding.EncodeToString([]byte("174379passkey20260102030405"))
	assert.Equal(t, expected, f.lastPush.Password)
	assert.Equal(t, TransactionTypePayBill, f.lastPush.TransactionType)
	assert.Equal(t, "254712345678", f.lastPush.PhoneNumber)
	assert.Equal(t, "254712345678", f.lastPush.PartyA)
	assert.Equal(t, "174379", f.lastPush.PartyB)
	assert.Equal(t, int64(1000), f.lastPush.Amount)
	assert.Equal(t, "AbC123xyz", f.lastPush.AccountReference)
	assert.Equal(t, "Payment to me", f.lastPush.TransactionDesc)
	assert.Equal(t, "https://example.com/callback/s3cr3t-t0ken-value", f.lastPush.CallBackURL)
}

func TestSTKPushUnauthorizedInvalidatesTokenOnce(t *testing.T) {
	f := &fakeDaraja{pushStatus: http.StatusUnauthorized}
	p, mr := newTestProvider(t, f)

	_, err := p.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber: "254712345678",
		Amount:      10,
	})
	require.Error(t, err)
	assert.True(t, models.IsAuthentication(err))
	assert.False(t, mr.Exists(TokenCacheKey))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.pushCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))
}

func TestSTKPushGatewayError(t *testing.T) {
	f := &fakeDaraja{pushStatus: http.StatusBadRequest}
	p, mr := newTestProvider(t, f)

	_, err := p.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber: "254712345678",
		Amount:      10,
	})
	var mErr *MpesaError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, http.StatusBadRequest, mErr.StatusCode)
	assert.Equal(t, "Invalid Access Token", mErr.Message)
	assert.True(t, mr.Exists(TokenCacheKey))
}

func TestSTKPushRejectsBadPhone(t *testing.T) {
	f := &fakeDaraja{}
	p, _ := newTestProvider(t, f)

	_, err := p.InitiateSTKPush(context.Background(), STKPushParams{PhoneNumber: "12345", Amount: 10})
	require.ErrorIs(t, err, ErrInvalidPhoneNumber)
	assert.Zero(t, atomic.LoadInt32(&f.pushCalls))
}

func TestParseSTKCallbackEnvelope(t *testing.T) {
	payload := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"mr_1",
		"CheckoutRequestID":"ws_123",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1000},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}
		]}}}}`)

	res, err := ParseSTKCallback(payload)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "ws_123", res.CheckoutRequestID)
	assert.Equal(t, "mr_1", res.MerchantRequestID)
	assert.Equal(t, "NLJ7RT61SV", res.ReceiptNumber)
	assert.Equal(t, "1000", res.Amount)
	assert.Equal(t, "254708374149", res.PhoneNumber)
}

func TestParseSTKCallbackFlat(t *testing.T) {
	res, err := ParseSTKCallback([]byte(`{"ResultCode":1,"ResultDesc":"Failed","CheckoutRequestID":"ws_123"}`))
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 1, res.ResultCode)
	assert.Equal(t, "Failed", res.ResultDesc)
	assert.Equal(t, "ws_123", res.CheckoutRequestID)
}

func TestParseSTKCallbackMalformed(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"CheckoutRequestID":"ws_1"}`,
	} {
		_, err := ParseSTKCallback([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedCallback, payload)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := map[string]string{
		"0712345678":     "254712345678",
		"+254712345678":  "254712345678",
		"254 712 345678": "254712345678",
		"712345678":      "254712345678",
		"0112345678":     "254112345678",
	}
	for in, want := range cases {
		got, err := NormalizePhoneNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "12345", "255712345678", "07123456ab"} {
		_, err := NormalizePhoneNumber(bad)
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber, bad)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Payment to me", truncate("Payment to merchant", maxDescriptionChars))
	assert.Equal(t, "short", truncate("short", maxDescriptionChars))

	cut := truncate("Malipo ya Wanjirū Café", maxDescriptionChars)
	assert.Equal(t, "Malipo ya Wan", cut)
	assert.True(t, utf8.ValidString(cut))

	cut = truncate("Café Ñandú Ltd", 4)
	assert.Equal(t, "Café", cut)
	assert.True(t, utf8.ValidString(cut))

	assert.Equal(t, "Wanjirū", truncate("Wanjirū", 7))
}
