package anomaly

import (
	"math"
	"time"

	"PolyPulse/internal/domain/models"
)

// insiderScore composes a 0–100 heuristic estimating how likely a whale trade
// reflects informed positioning. Each factor is capped before summation and
// the total is clamped to [0,100].
//
// Market age is approximated from the span of locally retained price history,
// not the venue's creation time, so freshly monitored old markets score as
// young. Accepted as non-authoritative.
func (d *Detector) insiderScore(t *models.Trade, s *marketState) float64 {
	var score float64

	// Conviction at a confident price: longshot or near-certain outcomes.
	if t.Price < 0.15 || t.Price > 0.85 {
		score += 25
	}

	// Size relative to the trailing average notional: +5 per multiple, cap 25.
	if avg, ok := trailingMean(s.notionals); ok && avg > 0 {
		multiple := t.Notional() / avg
		score += math.Min(5*math.Floor(multiple), 25)
	}

	// Young markets attract informed first movers.
	if first, ok := s.firstSeen(); ok {
		switch age := t.Timestamp.Sub(first); {
		case age < time.Hour:
			score += 15
		case age < 6*time.Hour:
			score += 10
		case age < 24*time.Hour:
			score += 5
		}
	}

	// Extreme-price tiers stack on top of the conviction term.
	switch {
	case t.Price < 0.05 || t.Price > 0.95:
		score += 15
	case t.Price < 0.10 || t.Price > 0.90:
		score += 8
	}

	// Optional historical win rate of large traders on this asset.
	if d.winRate != nil {
		if wr, ok := d.winRate(t.AssetID); ok {
			score += math.Min(math.Max(wr, 0), 1) * 20
		}
	}

	return math.Min(score, 100)
}
