package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	stepRetries  *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	runsActive   prometheus.Gauge
}

// MustNewMetrics registers the pipeline collectors with reg, reusing
// collectors that are already registered. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		stepDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tally",
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Duration of each step attempt.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step", "status"},
		)),
		stepFailures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "pipeline",
				Name:      "step_failures_total",
				Help:      "Steps that ended without output.",
			},
			[]string{"step", "reason"},
		)),
		stepRetries: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "pipeline",
				Name:      "step_retries_total",
				Help:      "Step attempts after the first.",
			},
			[]string{"step"},
		)),
		runsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Completed runs by final status.",
			},
			[]string{"status"},
		)),
		runsActive: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tally",
				Subsystem: "pipeline",
				Name:      "runs_active",
				Help:      "Runs currently executing.",
			},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveStep records one step attempt
func (m *Metrics) ObserveStep(step, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

// IncStepFailure counts a step that ended without output
func (m *Metrics) IncStepFailure(step, reason string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step, reason).Inc()
}

// IncStepRetry counts a retried attempt
func (m *Metrics) IncStepRetry(step string) {
	if m == nil {
		return
	}
	m.stepRetries.WithLabelValues(step).Inc()
}

// RunStarted marks a run as active
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished marks a run as complete with its final status
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
}
