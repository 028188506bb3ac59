package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samcharles93/autoflex/internal/flex"
)

// Metrics is a flex.Observer exporting adaptation and clipping events.
type Metrics struct {
	clipped     *prometheus.CounterVec
	scale       *prometheus.GaugeVec
	adaptations *prometheus.CounterVec
}

// NewMetrics registers the autoflex collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		clipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflex_clipped_elements_total",
			Help: "Elements saturated to the storage range on write",
		}, []string{"entry"}),
		scale: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoflex_scale",
			Help: "Current scale of each flex entry",
		}, []string{"entry"}),
		adaptations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflex_scale_adaptations_total",
			Help: "Scale changes by direction",
		}, []string{"entry", "direction"}),
	}
}

func (m *Metrics) ScaleChanged(e *flex.Entry, old, new float64) {
	dir := "down"
	if new > old {
		dir = "up"
	}
	m.scale.WithLabelValues(e.Name()).Set(new)
	m.adaptations.WithLabelValues(e.Name(), dir).Inc()
}

func (m *Metrics) Clipped(e *flex.Entry, n int) {
	m.clipped.WithLabelValues(e.Name()).Add(float64(n))
}

// Observe publishes the current scale of every entry, including entries
// that have never adapted.
func (m *Metrics) Observe(snap flex.Snapshot) {
	for _, e := range snap.Entries {
		m.scale.WithLabelValues(e.Name).Set(e.Scale)
	}
}
