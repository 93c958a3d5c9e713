package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts orchestrator outcomes. A nil *Metrics records nothing.
type Metrics struct {
	runs    *prometheus.CounterVec
	appends *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_recommendation_runs_total",
			Help: "Recommendation runs by outcome.",
		}, []string{"outcome"}),
		appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_forecast_appends_total",
			Help: "Forecast log appends by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) run(outcome string) {
	if m != nil {
		m.runs.WithLabelValues(outcome).Inc()
	}
}

// Append records the outcome of a forecast log append.
func (m *Metrics) Append(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.appends.WithLabelValues("error").Inc()
		return
	}
	m.appends.WithLabelValues("ok").Inc()
}
