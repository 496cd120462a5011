package queue

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "sdeal"

var (
	ReadyDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "queue",
		Name:      "ready_tasks",
		Help:      "Tasks waiting on the ready set, per kind.",
	}, []string{"kind"})
	Enqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      "Tasks accepted onto the queue, per kind. Deduplicated submissions are not counted.",
	}, []string{"kind"})
	Processed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "queue",
		Name:      "processed_total",
		Help:      "Handler outcomes per kind: ok, retry or dead.",
	}, []string{"kind", "outcome"})
	HandlerSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "queue",
		Name:      "handler_duration_seconds",
		Help:      "Wall time spent in the task handler.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
	DeadLetterDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "queue",
		Name:      "dead_letters",
		Help:      "Tasks parked on the dead-letter list, per kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(ReadyDepth, Enqueued, Processed, HandlerSeconds, DeadLetterDepth)
}
