package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts order lifecycle activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Transitions  *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
	FeedPulls    *prometheus.CounterVec
	ActiveToasts prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Accepted order status transitions.",
		}, []string{"from", "to"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "transitions_rejected_total",
			Help:      "Transition attempts that failed, by error kind.",
		}, []string{"kind"}),
		FeedPulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "notifications",
			Name:      "pulled_events_total",
			Help:      "Notification events handed to delivery, by recipient role.",
		}, []string{"role"}),
		ActiveToasts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "toasts",
			Name:      "active",
			Help:      "Toasts currently held across all recipients.",
		}),
	}
	reg.MustRegister(m.Transitions, m.Rejected, m.FeedPulls, m.ActiveToasts)
	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Reject(kind string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) Pulled(role string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FeedPulls.WithLabelValues(role).Add(float64(n))
}

func (m *Metrics) SetActiveToasts(n int) {
	if m == nil {
		return
	}
	m.ActiveToasts.Set(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
