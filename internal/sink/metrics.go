package sink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seqguard/seqguard/internal/action"
)

// Metrics is a sink that counts detections by rule and severity, plus
// an ingestion counter incremented by the tracker.
type Metrics struct {
	detections *prometheus.CounterVec
	actions    prometheus.Counter
}

// NewMetrics creates and registers the detector metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqguard",
			Name:      "detections_total",
			Help:      "Detections emitted, by rule and severity.",
		}, []string{"rule_id", "severity"}),
		actions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seqguard",
			Name:      "actions_ingested_total",
			Help:      "Actions ingested across all sessions.",
		}),
	}
	reg.MustRegister(m.detections, m.actions)
	return m
}

// Report counts one detection.
func (m *Metrics) Report(det *action.Detection) {
	m.detections.WithLabelValues(det.RuleID, det.Severity).Inc()
}

// ActionIngested counts one ingested action.
func (m *Metrics) ActionIngested() {
	m.actions.Inc()
}
