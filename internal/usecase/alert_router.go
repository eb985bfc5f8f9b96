package usecase

import (
	"context"
	"fmt"
	"time"

	"PolyPulse/internal/domain/models"
	drepo "PolyPulse/internal/domain/repository"
	applogger "PolyPulse/pkg/logger"
)

// AlertRouter routes emitted alerts to the configured downstream backend.
// This is caller-side delivery: the monitoring core gives no persistence or
// exactly-once guarantee, and a failed route loses at most that alert.
type AlertRouter struct {
	pub     drepo.AlertPublisher
	archive drepo.AlertArchive
	metrics drepo.Metrics
	log     *applogger.Logger
	backend string
}

// NewAlertRouter creates a router. backend is "kafka", "clickhouse", or "log".
func NewAlertRouter(
	pub drepo.AlertPublisher,
	archive drepo.AlertArchive,
	metrics drepo.Metrics,
	log *applogger.Logger,
	backend string,
) *AlertRouter {
	return &AlertRouter{pub: pub, archive: archive, metrics: metrics, log: log, backend: backend}
}

// Process routes a single alert.
func (r *AlertRouter) Process(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}

	start := time.Now()
	var err error
	switch r.backend {
	case "kafka":
		err = r.pub.Publish(ctx, a)
	case "clickhouse":
		err = r.archive.Store(ctx, a)
	case "log":
		if r.log != nil {
			r.log.Info("alert routed",
				applogger.String("type", string(a.Type)),
				applogger.String("asset", a.AssetID),
				applogger.String("reasoning", a.Reasoning),
			)
		}
	default:
		err = fmt.Errorf("unknown alert backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("route")
		return fmt.Errorf("route alert: %w", err)
	}
	r.metrics.RecordLatency("route", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes multiple alerts in one backend call.
func (r *AlertRouter) ProcessBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch r.backend {
	case "kafka":
		err = r.pub.PublishBatch(ctx, alerts)
	case "clickhouse":
		err = r.archive.StoreBatch(ctx, alerts)
	case "log":
		for _, a := range alerts {
			_ = r.Process(ctx, a)
		}
	default:
		err = fmt.Errorf("unknown alert backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("route_batch")
		return fmt.Errorf("route batch: %w", err)
	}
	r.metrics.RecordLatency("route_batch", time.Since(start).Seconds())
	return nil
}

// Close releases downstream resources.
func (r *AlertRouter) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.archive != nil {
		_ = r.archive.Close()
	}
}
