package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adwatch"

// Detection outcomes.
const (
	OutcomeTriggered = "triggered"
	OutcomeQuiet     = "quiet"
	OutcomeError     = "error"
)

type Metrics struct {
	// Detections counts detector calls by alert_type and outcome.
	Detections *prometheus.CounterVec
	// Surfaced counts surfaced alerts by alert_type and severity.
	Surfaced *prometheus.CounterVec
	// Remediations counts orchestrator calls by playbook and result (passed | blocked).
	Remediations *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	OpenAlerts   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detector evaluations by alert type and outcome.",
		}, []string{"alert_type", "outcome"}),
		Surfaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_surfaced_total",
			Help:      "Alerts surfaced after noise control.",
		}, []string{"alert_type", "severity"}),
		Remediations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Remediation runs by playbook and guardrail result.",
		}, []string{"playbook", "result"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full detection run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		OpenAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_alerts",
			Help:      "Alert states in open status after the last run.",
		}),
	}
}
