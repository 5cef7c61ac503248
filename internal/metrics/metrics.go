package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/reachcheck/internal/domain"
)

// Metrics holds the collectors for diagnostic runs. It implements
// probe.Recorder.
type Metrics struct {
	probes      *prometheus.CounterVec
	probeTime   *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	reachable   *prometheus.GaugeVec
	provisioned *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reachcheck",
				Subsystem: "probe",
				Name:      "outcomes_total",
				Help:      "Probe outcomes by addressing mode and result.",
			},
			[]string{"mode", "result"},
		),
		probeTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reachcheck",
				Subsystem: "probe",
				Name:      "duration_seconds",
				Help:      "Probe duration in seconds.",
				Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"mode"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reachcheck",
				Name:      "runs_total",
				Help:      "Diagnostic runs by diagnosis.",
			},
			[]string{"diagnosis"},
		),
		reachable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "reachcheck",
				Name:      "mode_reachable",
				Help:      "1 if the addressing mode reached the service in the last run.",
			},
			[]string{"mode"},
		),
		provisioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reachcheck",
				Subsystem: "firewall",
				Name:      "provision_total",
				Help:      "Firewall provisioning calls by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.probes, m.probeTime, m.runs, m.reachable, m.provisioned)
	return m
}

func (m *Metrics) Observe(o domain.ProbeOutcome) {
	mode := string(o.Mode())
	m.probes.WithLabelValues(mode, string(o.Result)).Inc()
	m.probeTime.WithLabelValues(mode).Observe(o.Latency.Seconds())
	v := 0.0
	if o.Reached() {
		v = 1
	}
	m.reachable.WithLabelValues(mode).Set(v)
}

func (m *Metrics) RecordRun(d domain.Diagnosis) {
	m.runs.WithLabelValues(string(d)).Inc()
}

// RecordProvision counts a provisioning call; failed calls use "error".
func (m *Metrics) RecordProvision(outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	m.provisioned.WithLabelValues(outcome).Inc()
}
