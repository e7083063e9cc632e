package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exported on the gateway's /metrics endpoint.
var (
	pendingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ollamagate_queue_pending",
			Help: "Items waiting for a slot, by class",
		},
		[]string{"class"},
	)

	runningGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ollamagate_queue_running",
			Help: "Items currently running, by class",
		},
		[]string{"class"},
	)

	limitGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ollamagate_queue_limit",
			Help: "Configured concurrency limit, by class",
		},
		[]string{"class"},
	)

	settledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamagate_queue_settled_total",
			Help: "Items settled, by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	waitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ollamagate_queue_wait_seconds",
			Help:    "Time spent queued before dispatch",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"class"},
	)

	runSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ollamagate_queue_run_seconds",
			Help:    "Time spent running once dispatched",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"class"},
	)
)
