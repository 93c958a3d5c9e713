package livestate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the fan-out collectors. A nil *Metrics records nothing.
type Metrics struct {
	observers  prometheus.Gauge
	broadcasts prometheus.Counter
	dropped    *prometheus.CounterVec
	updates    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		observers: f.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_observers",
			Help: "Currently registered state observers.",
		}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_broadcasts_total",
			Help: "Total messages broadcast to observers.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_observers_dropped_total",
			Help: "Observers removed because delivery to them failed.",
		}, []string{"reason"}),
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_state_updates_total",
			Help: "State updates applied, by origin.",
		}, []string{"source"}),
	}
}

func (m *Metrics) setObservers(n int) {
	if m != nil {
		m.observers.Set(float64(n))
	}
}

func (m *Metrics) broadcast() {
	if m != nil {
		m.broadcasts.Inc()
	}
}

func (m *Metrics) drop(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) update(source string) {
	if m != nil {
		m.updates.WithLabelValues(source).Inc()
	}
}
