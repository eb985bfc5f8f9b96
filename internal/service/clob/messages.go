package clob

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"PolyPulse/internal/domain/models"
)

// Wire frames for the CLOB market channel. Prices, sizes, and timestamps
// arrive as strings; unknown event types and malformed payloads are tolerated
// by the caller, never fatal.

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireFrame struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp string      `json:"timestamp"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Price     string      `json:"price"`
	Size      string      `json:"size"`
	Side      string      `json:"side"`
}

const (
	frameBook      = "book"
	frameTrade     = "last_trade_price"
	framePriceChg  = "price_change"
	frameTickSize  = "tick_size_change"
	frameHeartbeat = "heartbeat"
)

// decodeFrames accepts either a single frame object or an array of frames,
// which is how the venue batches messages.
func decodeFrames(data []byte) ([]wireFrame, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var frames []wireFrame
		if err := json.Unmarshal(data, &frames); err != nil {
			return nil, fmt.Errorf("decode frame array: %w", err)
		}
		return frames, nil
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return []wireFrame{f}, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.ParseFloat(s, 64)
}

// parseTimestamp reads a millisecond epoch string; an absent or malformed
// value falls back to now so one bad field never drops an otherwise-good frame.
func parseTimestamp(s string, now time.Time) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return now
	}
	return time.UnixMilli(ms)
}

func parseLevels(raw []wireLevel) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, l := range raw {
		price, err := parseFloat(l.Price)
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", l.Price, err)
		}
		size, err := parseFloat(l.Size)
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", l.Size, err)
		}
		levels = append(levels, models.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

func (f *wireFrame) toBook(now time.Time) (*models.BookSnapshot, error) {
	if f.AssetID == "" {
		return nil, fmt.Errorf("book frame missing asset_id")
	}
	bids, err := parseLevels(f.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(f.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &models.BookSnapshot{
		AssetID:   f.AssetID,
		Timestamp: parseTimestamp(f.Timestamp, now),
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func (f *wireFrame) toTrade(now time.Time) (*models.Trade, error) {
	if f.AssetID == "" {
		return nil, fmt.Errorf("trade frame missing asset_id")
	}
	price, err := parseFloat(f.Price)
	if err != nil {
		return nil, fmt.Errorf("trade price %q: %w", f.Price, err)
	}
	size, err := parseFloat(f.Size)
	if err != nil {
		return nil, fmt.Errorf("trade size %q: %w", f.Size, err)
	}
	return &models.Trade{
		AssetID:   f.AssetID,
		Timestamp: parseTimestamp(f.Timestamp, now),
		Price:     price,
		Size:      size,
		Side:      f.Side,
	}, nil
}

// subscribeMsg is the control frame for both subscribe and unsubscribe.
type subscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}
