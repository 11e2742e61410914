package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"payment-relay/pkg/types"
)

// Failure reasons recorded on payment_failed_transactions_total.
const (
	ReasonDecode  = "decode"
	ReasonStore   = "store"
	ReasonPublish = "publish"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	processed       *prometheus.CounterVec
	failed          *prometheus.CounterVec
	duration        prometheus.Histogram
	connectAttempts prometheus.Counter
	reconciled      prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_processed_transactions_total",
			Help: "The total number of transactions that reached a verdict",
		}, []string{"status"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_failed_transactions_total",
			Help: "The total number of transactions dropped before a verdict was published",
		}, []string{"reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_processing_duration_seconds",
			Help:    "Time spent processing payments",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_broker_connect_attempts_total",
			Help: "The total number of broker connection attempts",
		}),
		reconciled: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_reconciled_transactions_total",
			Help: "The total number of stuck pending transactions settled by the reconciler",
		}),
	}
}

func (m *Metrics) ObserveProcessed(status types.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(string(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncFailed(reason string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncConnectAttempts() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *Metrics) IncReconciled() {
	if m == nil {
		return
	}
	m.reconciled.Inc()
}
