package models

import "time"

// MarketEvent is the union of typed events emitted by the stream layer.
// Consumers dispatch with a type switch; arrival order is preserved.
type MarketEvent interface {
	Asset() string
	At() time.Time
}

func (b *BookSnapshot) Asset() string { return b.AssetID }
func (b *BookSnapshot) At() time.Time { return b.Timestamp }

func (t *Trade) Asset() string { return t.AssetID }
func (t *Trade) At() time.Time { return t.Timestamp }

func (p *PriceChange) Asset() string { return p.AssetID }
func (p *PriceChange) At() time.Time { return p.Timestamp }
