package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics tracks discarded fragments and lifecycle activity. Discovery
// semantics never depend on these; they exist so silent discards are at
// least countable.
type metrics struct {
	discardedFragments *prometheus.CounterVec
	lifecycleEvents    *prometheus.CounterVec
	devicesOnline      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		discardedFragments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "castwatch",
			Subsystem: "discovery",
			Name:      "discarded_fragments_total",
			Help:      "Discovery fragments dropped before reconciliation, by source and reason.",
		}, []string{"source", "reason"}),
		lifecycleEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "castwatch",
			Subsystem: "discovery",
			Name:      "lifecycle_events_total",
			Help:      "Device lifecycle events emitted, by event type.",
		}, []string{"event"}),
		devicesOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "castwatch",
			Subsystem: "discovery",
			Name:      "devices_online",
			Help:      "Devices currently present in the registry.",
		}),
	}
}

func (m *metrics) discard(source, reason string) {
	if m == nil {
		return
	}
	m.discardedFragments.WithLabelValues(source, reason).Inc()
}

func (m *metrics) event(name string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(name).Inc()
}

func (m *metrics) addOnline(delta float64) {
	if m == nil {
		return
	}
	m.devicesOnline.Add(delta)
}
