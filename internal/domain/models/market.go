package models

import "time"

// PriceLevel is one price+size entry on a side of an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a full bid/ask snapshot for one outcome token.
// Best bid/ask and mid are derived, never stored.
type BookSnapshot struct {
	AssetID   string
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (b *BookSnapshot) BestBid() float64 {
	best := 0.0
	for _, l := range b.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (b *BookSnapshot) BestAsk() float64 {
	best := 0.0
	for _, l := range b.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// MidPrice returns (best bid + best ask)/2, or 0 when either side is empty.
func (b *BookSnapshot) MidPrice() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns best ask minus best bid, or 0 when either side is empty.
func (b *BookSnapshot) Spread() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Depth returns total bid size and total ask size.
func (b *BookSnapshot) Depth() (bidDepth, askDepth float64) {
	for _, l := range b.Bids {
		bidDepth += l.Size
	}
	for _, l := range b.Asks {
		askDepth += l.Size
	}
	return bidDepth, askDepth
}

// Imbalance returns (Σbid − Σask)/(Σbid + Σask), always within [-1, 1].
// An empty book yields 0.
func (b *BookSnapshot) Imbalance() float64 {
	bid, ask := b.Depth()
	total := bid + ask
	if total == 0 {
		return 0
	}
	return (bid - ask) / total
}

// Trade is a single execution reported by the venue feed.
type Trade struct {
	AssetID   string
	Timestamp time.Time
	Price     float64
	Size      float64
	Side      string // "BUY" or "SELL"
}

// Notional is the dollar value of the trade (price × size).
func (t *Trade) Notional() float64 {
	return t.Price * t.Size
}

// PriceChange is a synthesized event: the observed price for an asset moved
// at least the configured fraction relative to the last observed price.
type PriceChange struct {
	AssetID   string
	Timestamp time.Time
	OldPrice  float64
	NewPrice  float64
}

// ChangePct returns the relative move, signed.
func (p *PriceChange) ChangePct() float64 {
	if p.OldPrice == 0 {
		return 0
	}
	return (p.NewPrice - p.OldPrice) / p.OldPrice
}

// PriceSample is the atomic unit of every rolling history.
type PriceSample struct {
	Value     float64
	Timestamp time.Time
}

// MarketInfo is optional caller-supplied metadata used only to enrich alert text.
type MarketInfo struct {
	AssetID  string `json:"asset_id"`
	Question string `json:"question"`
	EventURL string `json:"event_url,omitempty"`
}
