package repository

import (
	"context"
	"time"

	"PolyPulse/internal/domain/models"
)

// MarketStream is a resilient push connection to the venue's live feed.
// Events are delivered in arrival order on a single-consumer channel.
type MarketStream interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(ctx context.Context, assetIDs ...string) error
	Unsubscribe(ctx context.Context, assetIDs ...string) error
	Events() <-chan models.MarketEvent
	Errors() <-chan error
	IsConnected() bool
	Subscribed() []string
}

// AlertPublisher delivers alerts to a message broker.
type AlertPublisher interface {
	Publish(ctx context.Context, a *models.Alert) error
	PublishBatch(ctx context.Context, alerts []*models.Alert) error
	Close() error
}

// AlertArchive persists alerts downstream of the core. The core itself keeps
// no durable state; archival is caller-side routing, lost alerts are accepted.
type AlertArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, a *models.Alert) error
	StoreBatch(ctx context.Context, alerts []*models.Alert) error
	Query(ctx context.Context, assetID string, from, to time.Time, limit int) ([]*models.Alert, error)
	Health(ctx context.Context) error
	Close() error
}

// MarketTitles resolves optional market metadata for alert enrichment.
type MarketTitles interface {
	Question(ctx context.Context, assetID string) (string, bool)
}

// Metrics is the observability seam implemented by pkg/metrics.
type Metrics interface {
	RecordEvent(kind, assetID string)
	RecordAlert(alertType string)
	RecordError(kind string)
	RecordLastPrice(assetID string, price float64)
	RecordLatency(op string, seconds float64)
	RecordReconnect()
}
