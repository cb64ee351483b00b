package tracing

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts jobs and their duration per provider and outcome.
type Metrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the job collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marie_jobs_submitted_total",
				Help: "Jobs accepted by the remote service, per provider.",
			},
			[]string{"provider"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marie_jobs_finished_total",
				Help: "Jobs that ended, per provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marie_job_duration_seconds",
				Help:    "Time from submit to outcome, per provider and outcome.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 320, 480},
			},
			[]string{"provider", "outcome"},
		),
	}

	for _, collector := range []prometheus.Collector{metrics.submitted, metrics.finished, metrics.duration} {
		err := registerer.Register(collector)
		if err != nil {
			return nil, fmt.Errorf("failed to register job metrics: %w", err)
		}
	}

	return metrics, nil
}

func (m *Metrics) OnSubmit(_ context.Context, event JobEvent) {
	m.submitted.WithLabelValues(norm(event.Provider)).Inc()
}

func (m *Metrics) OnTerminal(_ context.Context, event JobEvent) {
	m.finish(event)
}

func (m *Metrics) OnError(_ context.Context, event JobEvent) {
	m.finish(event)
}

func (m *Metrics) finish(event JobEvent) {
	labels := []string{norm(event.Provider), event.Outcome()}

	m.finished.WithLabelValues(labels...).Inc()

	if event.Duration > 0 {
		m.duration.WithLabelValues(labels...).Observe(event.Duration.Seconds())
	}
}

func norm(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "unknown"
	}

	return label
}
