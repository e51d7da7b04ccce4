package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailauth"

// Verification outcome labels.
const (
	OutcomeConsumed  = "consumed"
	OutcomeNotFound  = "not_found"
	OutcomeExpired   = "expired"
	OutcomeExhausted = "exhausted"
	OutcomeWrongCode = "wrong_code"
)

// Metrics groups the collectors for the verification core.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	codesIssued   prometheus.Counter
	sendsThrottle prometheus.Counter
	verifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	swept         prometheus.Counter
}

// New registers the collectors on a fresh registry. activeRecords, if set,
// backs a gauge with the live record count.
func New(activeRecords func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "Verification codes generated and stored.",
		}),
		sendsThrottle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_throttled_total",
			Help:      "Send requests rejected by the resend interval.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification checks by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Mail delivery attempts by result (ok, auth, connection, other).",
		}, []string{"result"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_swept_total",
			Help:      "Expired records removed by the background sweep.",
		}),
	}
	reg.MustRegister(m.codesIssued, m.sendsThrottle, m.verifications, m.deliveries, m.swept)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if activeRecords != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_records",
			Help:      "Verification records currently held in memory.",
		}, func() float64 { return float64(activeRecords()) }))
	}
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) SendThrottled() {
	if m == nil {
		return
	}
	m.sendsThrottle.Inc()
}

func (m *Metrics) Verified(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Delivered(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(n))
}
