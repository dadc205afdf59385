// Package metrics counts landscape evaluations with Prometheus collectors
// held in a private registry, exported as a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "vsrscape"
	subsystem = "landscape"

	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"

	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	evaluations    *prometheus.CounterVec
	evalDuration   prometheus.Histogram
	rows           prometheus.Counter
	configurations *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evaluations_total",
			Help:      "Fitness evaluations by configuration and outcome",
		}, []string{"configuration", "outcome"}),
		evalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of a single fitness evaluation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_written_total",
			Help:      "Landscape rows handed to the writer",
		}),
		configurations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "configurations_total",
			Help:      "Completed configurations by status",
		}, []string{"status"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveEvaluation(configuration, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(configuration, outcome).Inc()
	if outcome == OutcomeSuccess {
		r.evalDuration.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) AddRows(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.rows.Add(float64(n))
}

func (r *Recorder) ConfigurationDone(status string) {
	if r == nil {
		return
	}
	r.configurations.WithLabelValues(status).Inc()
}

// WriteTextfile atomically writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
