package models

import (
	"fmt"
	"time"
)

// AlertType identifies which detection rule produced an alert.
type AlertType string

const (
	AlertFlashMove      AlertType = "flash_move"
	AlertWhaleTrade     AlertType = "whale_trade"
	AlertVolumeSpike    AlertType = "volume_spike"
	AlertSpreadCollapse AlertType = "spread_collapse"
	AlertBookImbalance  AlertType = "book_imbalance"
)

// Direction classifies which way a signal points.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Alert is an immutable detection result. Magnitudes are only comparable
// within the same alert type; there is no cross-rule normalization.
type Alert struct {
	Type      AlertType          `json:"type"`
	AssetID   string             `json:"asset_id"`
	Magnitude float64            `json:"magnitude"`
	Direction Direction          `json:"direction"`
	Timestamp time.Time          `json:"timestamp"`
	Details   map[string]float64 `json:"details,omitempty"`
	Reasoning string             `json:"reasoning"`

	// Question is optional metadata enrichment; empty when unknown.
	Question string `json:"question,omitempty"`

	// InsiderScore is set only on whale_trade alerts; nil otherwise.
	InsiderScore *float64 `json:"insider_score,omitempty"`
}

// Key is the cooldown identity: one alert per key per cooldown window.
func (a *Alert) Key() string {
	return fmt.Sprintf("%s:%s", a.Type, a.AssetID)
}
