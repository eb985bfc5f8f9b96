package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PolyPulse/internal/domain/models"
	"PolyPulse/internal/domain/repository"
	pkgkafka "PolyPulse/pkg/kafka"
)

// ClickHouseAlertArchive implements AlertArchive on ClickHouse.
type ClickHouseAlertArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseAlertArchive creates ClickHouse-backed alert storage.
func NewClickHouseAlertArchive(db *sql.DB, table string) repository.AlertArchive {
	return &ClickHouseAlertArchive{db: db, table: table}
}

func (s *ClickHouseAlertArchive) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseAlertArchive) Store(ctx context.Context, a *models.Alert) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, asset_id, type, magnitude, direction, reasoning, question, insider_score, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, alertArgs(a)...)
	return err
}

func (s *ClickHouseAlertArchive) StoreBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to bound statement size.
	const chunkSize = 1000
	for start := 0; start < len(alerts); start += chunkSize {
		end := start + chunkSize
		if end > len(alerts) {
			end = len(alerts)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, a := range alerts[start:end] {
			if a == nil || a.AssetID == "" || a.Type == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, alertArgs(a)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, asset_id, type, magnitude, direction, reasoning, question, insider_score, details) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func alertArgs(a *models.Alert) []interface{} {
	var score float64
	if a.InsiderScore != nil {
		score = *a.InsiderScore
	}
	details := "{}"
	if len(a.Details) > 0 {
		if b, err := json.Marshal(a.Details); err == nil {
			details = string(b)
		}
	}
	return []interface{}{
		a.Timestamp,
		a.AssetID,
		string(a.Type),
		a.Magnitude,
		string(a.Direction),
		a.Reasoning,
		a.Question,
		score,
		details,
	}
}

func (s *ClickHouseAlertArchive) Query(ctx context.Context, assetID string, from, to time.Time, limit int) ([]*models.Alert, error) {
	q := fmt.Sprintf("SELECT ts, asset_id, type, magnitude, direction, reasoning, question, insider_score FROM %s WHERE asset_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, assetID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		var typ, dir string
		var score float64
		if err := rows.Scan(&a.Timestamp, &a.AssetID, &typ, &a.Magnitude, &dir, &a.Reasoning, &a.Question, &score); err != nil {
			return nil, err
		}
		a.Type = models.AlertType(typ)
		a.Direction = models.Direction(dir)
		if score > 0 {
			a.InsiderScore = &score
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *ClickHouseAlertArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAlertArchive) Close() error {
	return nil // Managed by pkg
}

// KafkaAlertPublisher implements AlertPublisher on Kafka.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertPublisher creates a Kafka alert publisher.
func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) repository.AlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, a *models.Alert) error {
	// Keyed by asset so per-market alert order survives partitioning.
	return p.producer.Publish(ctx, p.topic, []byte(a.AssetID), a)
}

func (p *KafkaAlertPublisher) PublishBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(alerts))
	for i, a := range alerts {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(a.AssetID),
			Value: a,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
