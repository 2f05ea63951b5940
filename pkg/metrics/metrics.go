package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// StepBuckets covers a trigger call (sub-second) up to a full test run (minutes).
var StepBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1200}

// Recorder collects the metrics of one pipeline invocation in a private
// registry. The process is short-lived, so nothing is scraped; the registry
// is pushed to a Pushgateway once at exit.
type Recorder struct {
	registry *prometheus.Registry

	StepDuration    *prometheus.HistogramVec
	StepTotal       *prometheus.CounterVec
	StepLastSuccess *prometheus.GaugeVec
	TriggerRequests *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all collectors registered
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_step_duration_seconds",
				Help:    "Pipeline step duration in seconds",
				Buckets: StepBuckets,
			},
			[]string{"step", "outcome"},
		),
		StepTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_step_total",
				Help: "Total number of pipeline step runs",
			},
			[]string{"step", "outcome"},
		),
		StepLastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_step_last_success_timestamp_seconds",
				Help: "Unix time of the last successful step run",
			},
			[]string{"step"},
		),
		TriggerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_build_trigger_requests_total",
				Help: "Total number of build trigger requests by response status",
			},
			[]string{"http_response_status_code"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records one finished step
func (r *Recorder) ObserveStep(step, outcome string, duration time.Duration) {
	r.StepDuration.WithLabelValues(step, outcome).Observe(duration.Seconds())
	r.StepTotal.WithLabelValues(step, outcome).Inc()
	if outcome == "success" {
		r.StepLastSuccess.WithLabelValues(step).SetToCurrentTime()
	}
}

// ObserveTrigger records one trigger request. A zero status means the
// request never got an answer.
func (r *Recorder) ObserveTrigger(statusCode int) {
	label := "none"
	if statusCode > 0 {
		label = strconv.Itoa(statusCode)
	}
	r.TriggerRequests.WithLabelValues(label).Inc()
}

// Push sends the registry to a Pushgateway, replacing the job's metrics.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	err := push.New(gatewayURL, job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
