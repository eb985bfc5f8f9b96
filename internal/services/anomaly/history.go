package anomaly

import (
	"time"

	"PolyPulse/internal/domain/models"
)

// marketState holds all rolling histories for one asset. Created lazily on the
// first event, reclaimed only by the periodic sweep once every history empties.
type marketState struct {
	prices    []models.PriceSample // mid or trade prices
	notionals []models.PriceSample // per-trade price×size
	spreads   []models.PriceSample
}

func (s *marketState) empty() bool {
	return len(s.prices) == 0 && len(s.notionals) == 0 && len(s.spreads) == 0
}

// firstSeen approximates market age from the span of locally retained price
// history. It is not the true market creation time and shrinks as old samples
// are swept; treat it as non-authoritative.
func (s *marketState) firstSeen() (time.Time, bool) {
	if len(s.prices) == 0 {
		return time.Time{}, false
	}
	return s.prices[0].Timestamp, true
}

// prune drops samples older than cutoff from one history, preserving order.
func prune(h []models.PriceSample, cutoff time.Time) []models.PriceSample {
	i := 0
	for i < len(h) && h[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return h
	}
	return append([]models.PriceSample(nil), h[i:]...)
}

// windowMean averages sample values within [from, to). Returns (0, 0) when the
// window holds no samples.
func windowMean(h []models.PriceSample, from, to time.Time) (mean float64, n int) {
	var sum float64
	for _, s := range h {
		if s.Timestamp.Before(from) || !s.Timestamp.Before(to) {
			continue
		}
		sum += s.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// trailingMean averages every sample value in the history.
func trailingMean(h []models.PriceSample) (float64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range h {
		sum += s.Value
	}
	return sum / float64(len(h)), true
}
