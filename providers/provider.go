package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	Mpesa     = "MPESA"
	Lightning = "LND"
)

// upstreamStatusError marks 5xx answers so the breaker counts them as
// failures while the caller still gets the response to decode.
type upstreamStatusError struct {
	status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}

// BaseProvider contains common fields and methods
type BaseProvider struct {
	Name    string
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	breaker *gobreaker.CircuitBreaker
}

// NewBaseProvider wires an HTTP client and a circuit breaker that opens
// after five consecutive failures and probes again after 30 seconds.
func NewBaseProvider(name, baseURL, apiKey string, timeout time.Duration, logger *logging.Logger, m *metrics.Metrics) BaseProvider {
	p := BaseProvider{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: timeout,
		},
		Logger:  logger,
		Metrics: m,
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("circuit breaker state changed")
			m.CircuitState(name, circuitValue(to))
		},
	})

	return p
}

// MakeRequest sends a JSON request. body may be nil. Transport errors, 5xx
// answers and an open circuit all count against the breaker; any other
// status is returned to the caller to interpret.
func (p *BaseProvider) MakeRequest(ctx context.Context, method, url string, body interface{}, extraHeaders map[string]string) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	// Allows for overwriting pre-set keys
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	p.Logger.WithFields(logrus.Fields{
		"provider": p.Name,
		"method":   method,
		"url":      req.URL.Path,
	}).Debug("external request")

	started := time.Now()
	execute := func() (interface{}, error) {
		resp, err := p.Client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &upstreamStatusError{status: resp.StatusCode}
		}
		return resp, nil
	}

	var result interface{}
	if p.breaker != nil {
		result, err = p.breaker.Execute(execute)
	} else {
		result, err = execute()
	}
	p.Metrics.ObserveProvider(p.Name, method+" "+req.URL.Path, started)

	var statusErr *upstreamStatusError
	if errors.As(err, &statusErr) {
		return result.(*http.Response), nil
	}
	if err != nil {
		p.Logger.WithFields(logrus.Fields{
			"provider": p.Name,
			"url":      req.URL.Path,
			"error":    err.Error(),
		}).Warn("external request failed")
		return nil, err
	}
	return result.(*http.Response), nil
}

// CircuitState reports the breaker state as "closed", "half-open" or "open".
func (p *BaseProvider) CircuitState() string {
	if p.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return p.breaker.State().String()
}

func circuitValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}

// Provider is an interface that all specific providers must implement
type Provider interface {
	GetName() string
	GetBaseURL() string
	CircuitState() string
}

// ProviderService manages multiple providers
type ProviderService struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewProviderService initializes a new ProviderService
func NewProviderService() *ProviderService {
	return &ProviderService{
		providers: make(map[string]Provider),
	}
}

// AddProvider adds a new provider to the service
func (s *ProviderService) AddProvider(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[provider.GetName()] = provider
}

// CircuitStates maps each registered provider to its breaker state.
func (s *ProviderService) CircuitStates() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]string, len(s.providers))
	for name, p := range s.providers {
		states[name] = p.CircuitState()
	}
	return states
}

// Implement the Provider interface methods for BaseProvider
func (bp *BaseProvider) GetName() string    { return bp.Name }
func (bp *BaseProvider) GetBaseURL() string { return bp.BaseURL }
