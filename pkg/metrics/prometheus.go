package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal *prometheus.CounterVec
	alertsTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	reconnects  prometheus.Counter
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypulse_stream_events_total",
				Help: "Total number of market events received from the stream",
			},
			[]string{"kind"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypulse_alerts_total",
				Help: "Total number of anomaly alerts emitted",
			},
			[]string{"type"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polypulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polypulse_last_price",
				Help: "Last observed price for an asset",
			},
			[]string{"asset"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polypulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polypulse_stream_reconnects_total",
				Help: "Total number of stream reconnect attempts",
			},
		),
	}
}

// RecordEvent counts a received market event by kind. The asset label is
// dropped to keep cardinality bounded on wide subscription sets.
func (r *Recorder) RecordEvent(kind, assetID string) {
	_ = assetID
	r.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordAlert counts an emitted alert by type.
func (r *Recorder) RecordAlert(alertType string) {
	r.alertsTotal.WithLabelValues(alertType).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(assetID string, price float64) {
	r.lastPrice.WithLabelValues(assetID).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordReconnect counts a reconnect attempt.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}
