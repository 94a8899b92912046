package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bch-rest-gateway/middleware/ratelimit/application"
	"bch-rest-gateway/middleware/ratelimit/domain"
)

// Metrics agrupa os coletores Prometheus do rate limit.
// Um *Metrics nil é válido e não registra nada.
type Metrics struct {
	decisions *prometheus.CounterVec
	points    *prometheus.CounterVec
	latency   prometheus.Histogram
	inFlight  prometheus.Gauge
	slotWaits prometheus.Histogram
	slotRej   *prometheus.CounterVec
	exempt    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by tier and outcome.",
		}, []string{"tier", "outcome"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "points_consumed_total",
			Help:      "Points charged against the counter store.",
		}, []string{"tier"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decide_duration_seconds",
			Help:      "Time spent classifying and consuming points.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "inflight_requests",
			Help:      "Requests currently holding a concurrency slot.",
		}),
		slotWaits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "concurrency",
			Name:      "queue_wait_seconds",
			Help:      "Time queued for a slot, only for requests that had to wait.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		slotRej: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "concurrency",
			Name:      "rejected_total",
			Help:      "Requests that never got a slot, by reason.",
		}, []string{"reason"}),
		exempt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "concurrency",
			Name:      "exempt_total",
			Help:      "Internal fan-out hops served without taking a slot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.points, m.latency, m.inFlight, m.slotWaits, m.slotRej, m.exempt)
	}
	return m
}

func (m *Metrics) observe(dec domain.Decision, took time.Duration) {
	if m == nil {
		return
	}
	tier := string(dec.Tier)
	m.decisions.WithLabelValues(tier, string(dec.Outcome)).Inc()
	if dec.Outcome == domain.OutcomeAllowed {
		m.points.WithLabelValues(tier).Add(float64(dec.Points))
	}
	m.latency.Observe(took.Seconds())
}

func (m *Metrics) slotAcquired() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) slotReleased() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) slotWait(adm application.Admission) {
	if m != nil && adm.Queued {
		m.slotWaits.Observe(adm.Waited.Seconds())
	}
}

func (m *Metrics) slotRejected(reason string) {
	if m != nil {
		m.slotRej.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) slotExempt() {
	if m != nil {
		m.exempt.Inc()
	}
}
