package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PolyPulse/internal/domain/models"
	domrepo "PolyPulse/internal/domain/repository"
	pkgkafka "PolyPulse/pkg/kafka"
)

// KafkaAlertsHandler drains the alerts topic into the archive. This runs as a
// separate consumer group from the publisher, so archival lag never touches
// the detection path.
type KafkaAlertsHandler struct {
	topic   string
	archive domrepo.AlertArchive
	metrics domrepo.Metrics
}

func NewKafkaAlertsHandler(topic string, archive domrepo.AlertArchive, metrics domrepo.Metrics) *KafkaAlertsHandler {
	return &KafkaAlertsHandler{topic: topic, archive: archive, metrics: metrics}
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

// Handle decodes one published alert and stores it.
func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	var a models.Alert
	if err := json.Unmarshal(b, &a); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// E2E latency from detection time to archival.
	h.metrics.RecordLatency("archive_e2e_seconds", time.Since(a.Timestamp).Seconds())

	start := time.Now()
	if err := h.archive.Store(ctx, &a); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordLatency("archive_insert_seconds", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
