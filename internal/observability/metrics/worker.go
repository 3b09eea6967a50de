package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	stageOutcome    *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantsignal",
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total pipeline jobs by result.",
		},
		[]string{"service", "result"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grantsignal",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Pipeline job duration in seconds by result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "result"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "grantsignal",
			Subsystem: "pipeline",
			Name:      "jobs_in_flight",
			Help:      "Number of in-flight pipeline jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageOutcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantsignal",
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Best-effort stage outcomes (completed or skip reason).",
		},
		[]string{"service", "stage", "outcome"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grantsignal",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload registration and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, stageOutcome, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		stageOutcome:    stageOutcome,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	result := "success"
	if err != nil {
		result = "error"
	}

	m.processTotal.WithLabelValues(service, result).Inc()
	m.processDuration.WithLabelValues(service, result).Observe(duration.Seconds())
}

// ObserveStage records a best-effort stage outcome: "completed" or the
// skip reason.
func (m *WorkerMetrics) ObserveStage(service, stage, outcome string) {
	if outcome == "" {
		outcome = "completed"
	}
	m.stageOutcome.WithLabelValues(service, stage, outcome).Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
