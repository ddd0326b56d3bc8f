package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
	stageAttempts *prometheus.CounterVec
	queueLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "worker",
			Name:      "pipeline_runs_total",
			Help:      "Finished pipeline runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "worker",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "talentsift",
			Subsystem: "worker",
			Name:      "pipeline_runs_in_flight",
			Help:      "Number of pipeline runs currently processing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentsift",
			Subsystem: "worker",
			Name:      "pipeline_stage_attempts_total",
			Help:      "Stage attempts by stage name.",
		},
		[]string{"service", "stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talentsift",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, stageAttempts, queueLag)

	return &WorkerMetrics{
		registry:      registry,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		runsInFlight:  runsInFlight,
		stageAttempts: stageAttempts,
		queueLag:      queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(service string, duration time.Duration, err error) {
	m.runsInFlight.Dec()

	outcome := "done"
	if err != nil {
		outcome = "failed"
	}

	m.runsTotal.WithLabelValues(service, outcome).Inc()
	m.runDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveStageAttempt(service, stage string) {
	m.stageAttempts.WithLabelValues(service, stage).Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
