// Package metrics holds the Prometheus instruments of the ingestion pipeline.
package metrics

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "trackmaster"

// Outcome label values for beacons.
const (
	OutcomeRecorded = "recorded"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Close reason label values for visits.
const (
	CloseReasonExit  = "exit"
	CloseReasonIdle  = "idle"
	CloseReasonSweep = "sweep"
)

// Metrics records ingestion activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	beacons         *prometheus.CounterVec
	visitorsCreated prometheus.Counter
	visitsOpened    prometheus.Counter
	visitsClosed    *prometheus.CounterVec
	fallbacks       prometheus.Counter
	ingestDuration  *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		beacons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_total",
			Help:      "Tracking beacons processed, by intent and outcome.",
		}, []string{"intent", "outcome"}),
		visitorsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visitors_created_total",
			Help:      "Visitors created by identity resolution.",
		}),
		visitsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_opened_total",
			Help:      "Visits opened by identity resolution.",
		}),
		visitsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_closed_total",
			Help:      "Visits closed, by reason.",
		}, []string{"reason"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_responses_total",
			Help:      "Tracking requests answered with the fallback response.",
		}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent resolving and recording a beacon.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.beacons, m.visitorsCreated, m.visitsOpened, m.visitsClosed, m.fallbacks, m.ingestDuration,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the instruments registered with the default Prometheus
// registry, creating them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := New(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// ObserveBeacon records one processed beacon.
func (m *Metrics) ObserveBeacon(intent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.beacons.WithLabelValues(intent, outcome).Inc()
	m.ingestDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *Metrics) VisitorCreated() {
	if m == nil {
		return
	}
	m.visitorsCreated.Inc()
}

func (m *Metrics) VisitOpened() {
	if m == nil {
		return
	}
	m.visitsOpened.Inc()
}

func (m *Metrics) VisitsClosed(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.visitsClosed.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// WriteText encodes the families gathered from g in the Prometheus text
// format. When prefix is set only families whose name starts with it are
// written.
func WriteText(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	filtered := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		if prefix != "" && !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		filtered = append(filtered, mf)
	}

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range filtered {
		if err := encoder.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ContentType is the media type WriteText produces.
func ContentType() string {
	return string(expfmt.FmtText)
}

// Namespace is the common prefix of every instrument name.
func Namespace() string {
	return namespace + "_"
}
