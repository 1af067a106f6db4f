package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the settlement service exports. A nil
// *Metrics is valid and records nothing, which keeps tests and tools free of
// registry plumbing.
type Metrics struct {
	paymentsInitiated       *prometheus.CounterVec
	paymentCallbacks        *prometheus.CounterVec
	reconciliationsRequired prometheus.Counter
	walletOperations        *prometheus.CounterVec
	lockAcquisitions        *prometheus.CounterVec
	providerLatency         *prometheus.HistogramVec
	circuitState            *prometheus.GaugeVec
}

func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentsInitiated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_initiated_total",
				Help:      "Payment initiations by outcome",
			},
			[]string{"result"},
		),
		paymentCallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_callbacks_total",
				Help:      "Mobile-money callbacks by outcome",
			},
			[]string{"result"},
		),
		reconciliationsRequired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_reconciliation_required_total",
				Help:      "Payments collected on mobile money but not released on Lightning",
			},
		),
		walletOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wallet_operations_total",
				Help:      "Wallet balance mutations by operation and outcome",
			},
			[]string{"operation", "result"},
		),
		lockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Distributed lock acquisition attempts by outcome",
			},
			[]string{"result"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of calls to external payment rails",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_circuit_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.paymentsInitiated,
			m.paymentCallbacks,
			m.reconciliationsRequired,
			m.walletOperations,
			m.lockAcquisitions,
			m.providerLatency,
			m.circuitState,
		)
	}

	return m
}

func (m *Metrics) PaymentInitiated(result string) {
	if m == nil {
		return
	}
	m.paymentsInitiated.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentCallback(result string) {
	if m == nil {
		return
	}
	m.paymentCallbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconciliationRequired() {
	if m == nil {
		return
	}
	m.reconciliationsRequired.Inc()
}

func (m *Metrics) WalletOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.walletOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *Metrics) LockAcquisition(result string) {
	if m == nil {
		return
	}
	m.lockAcquisitions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProvider(provider, operation string, started time.Time) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// CircuitState records 0 for closed, 1 for open, 2 for half-open.
func (m *Metrics) CircuitState(provider string, state float64) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(provider).Set(state)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
