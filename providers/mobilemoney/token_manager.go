package mobilemoney

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	TokenCacheKey = "mpesa:access_token"

	// Tokens are cached this much shorter than the gateway says they live.
	tokenExpiryMargin = 5 * time.Minute
)

var ErrTokenUnavailable = errors.New("mpesa access token unavailable")

// TokenManager hands out the gateway's OAuth access token, fetching a new
// one only when the cached copy is missing or was invalidated.
type TokenManager struct {
	provider       *providers.BaseProvider
	cache          redis.KeyValue
	consumerKey    string
	consumerSecret string
	group          singleflight.Group
}

func NewTokenManager(provider *providers.BaseProvider, cache redis.KeyValue, consumerKey, consumerSecret string) *TokenManager {
	return &TokenManager{
		provider:       provider,
		cache:          cache,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
	}
}

func (t *TokenManager) GetToken(ctx context.Context) (string, error) {
	token, err := t.cache.Get(ctx, TokenCacheKey)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		t.provider.Logger.WithField("error", err.Error()).Warn("token cache read failed")
	}

	// Concurrent misses share one call to the credential endpoint, so the
	// fetch must not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := t.group.Do(TokenCacheKey, func() (interface{}, error) {
		return t.fetch(fetchCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next GetToken fetches a new one.
func (t *TokenManager) Invalidate(ctx context.Context) error {
	t.provider.Logger.Info("invalidating mpesa access token")
	return t.cache.Delete(ctx, TokenCacheKey)
}

func (t *TokenManager) fetch(ctx context.Context) (string, error) {
	url := t.provider.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	credentials := base64.StdEncoding.EncodeToString([]byte(t.consumerKey + ":" + t.consumerSecret))

	resp, err := t.provider.MakeRequest(ctx, http.MethodGet, url, nil, map[string]string{
		"Authorization": "Basic " + credentials,
	})
	if err != nil {
		return "", models.NewAuthenticationError("could not reach mpesa credential endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.provider.Logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("mpesa credential request rejected")
		return "", models.NewAuthenticationError("mpesa rejected client credentials",
			fmt.Errorf("%w: status %d", ErrTokenUnavailable, resp.StatusCode))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", models.NewAuthenticationError("unreadable mpesa token response", err)
	}
	if token.AccessToken == "" {
		return "", models.NewAuthenticationError("mpesa returned an empty token", ErrTokenUnavailable)
	}

	lifetime, err := token.ExpiresIn.Int64()
	if err != nil {
		lifetime = int64(time.Hour / time.Second)
	}
	ttl := time.Duration(lifetime)*time.Second - tokenExpiryMargin
	if ttl > 0 {
		if err := t.cache.Set(ctx, TokenCacheKey, token.AccessToken, ttl); err != nil {
			t.provider.Logger.WithField("error", err.Error()).Warn("token cache write failed")
		}
	}

	t.provider.Logger.WithField("ttl", ttl.String()).Info("fetched mpesa access token")
	return token.AccessToken, nil
}
