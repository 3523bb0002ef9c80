package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDispatch("GET", false)
	m.RecordDispatch("GET", false)
	m.RecordDispatch("POST", true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.dispatches.WithLabelValues("GET", OutcomeRoute)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatches.WithLabelValues("POST", OutcomeFallback)))
}

func TestRecordHandshake(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordHandshake("")
	m.RecordHandshake("missing_key")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.handshakes.WithLabelValues(HandshakeAccepted, "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.handshakes.WithLabelValues(HandshakeRejected, "missing_key")))
}

func TestSessions(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.activeSessions))

	m.SessionFinished(nil)
	m.SessionFinished(errors.New("boom"))

	assert.Equal(t, float64(0), testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessions.WithLabelValues(SessionCompleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessions.WithLabelValues(SessionFailed)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordDispatch("GET", true)
		m.RecordHandshake("")
		m.SessionStarted()
		m.SessionFinished(nil)
	})
}
