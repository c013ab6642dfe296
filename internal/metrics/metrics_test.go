package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBeacon("pageview", OutcomeRecorded, time.Millisecond)
		m.VisitorCreated()
		m.VisitOpened()
		m.VisitsClosed(CloseReasonIdle, 3)
		m.Fallback()
	})
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveBeacon("pageview", OutcomeRecorded, 5*time.Millisecond)
	m.ObserveBeacon("pageview", OutcomeRecorded, 5*time.Millisecond)
	m.VisitsClosed(CloseReasonSweep, 2)
	m.VisitsClosed(CloseReasonSweep, 0)
	m.Fallback()

	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	reg.MustRegister(other)
	other.Inc()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg, Namespace()))
	out := buf.String()

	assert.Contains(t, out, `trackmaster_beacons_total{intent="pageview",outcome="recorded"} 2`)
	assert.Contains(t, out, `trackmaster_visits_closed_total{reason="sweep"} 2`)
	assert.Contains(t, out, "trackmaster_fallback_responses_total 1")
	assert.Contains(t, out, "trackmaster_ingest_duration_seconds_bucket")
	assert.NotContains(t, out, "unrelated_total")

	buf.Reset()
	require.NoError(t, WriteText(&buf, reg, ""))
	assert.Contains(t, buf.String(), "unrelated_total 1")
}

func TestContentType(t *testing.T) {
	assert.Contains(t, ContentType(), "text/plain")
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
