package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"payment-relay/pkg/types"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProcessed(types.StatusApproved, 200*time.Millisecond)
	m.ObserveProcessed(types.StatusApproved, 200*time.Millisecond)
	m.ObserveProcessed(types.StatusRejected, 200*time.Millisecond)
	m.IncFailed(ReasonDecode)
	m.IncConnectAttempts()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.processed.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processed.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues(ReasonDecode)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProcessed(types.StatusApproved, time.Second)
		m.IncFailed(ReasonStore)
		m.IncConnectAttempts()
		m.IncReconciled()
	})
}
