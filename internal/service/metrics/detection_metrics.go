package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	DetectionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polypulse",
			Subsystem: "detection",
			Name:      "latency_seconds",
			Help:      "Latency of detection rule evaluation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"rule"},
	)

	DetectionAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polypulse",
			Subsystem: "detection",
			Name:      "alerts_total",
			Help:      "Alerts emitted by detection rule",
		},
		[]string{"rule"},
	)

	DetectionSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polypulse",
			Subsystem: "detection",
			Name:      "suppressed_total",
			Help:      "Alerts suppressed by per-rule cooldown",
		},
		[]string{"rule"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(DetectionLatency, DetectionAlerts, DetectionSuppressed)
	})
}
