package velocity

import "time"

// ActivityState is the aggregate per-market classification derived from the
// price and volume velocity streams.
type ActivityState string

const (
	StateCalm     ActivityState = "calm"
	StateActive   ActivityState = "active"
	StateVolatile ActivityState = "volatile"
	StateExtreme  ActivityState = "extreme"
)

// MarketMonitor composes two metric streams per market (price:<id> and
// volume:<id>) into one activity state, recomputed on demand.
type MarketMonitor struct {
	tracker *Tracker
}

// NewMarketMonitor wraps a tracker.
func NewMarketMonitor(cfg Config) *MarketMonitor {
	return &MarketMonitor{tracker: NewTracker(cfg)}
}

// Tracker exposes the underlying tracker for direct metric access.
func (m *MarketMonitor) Tracker() *Tracker { return m.tracker }

// RecordPrice feeds one price observation for an asset.
func (m *MarketMonitor) RecordPrice(assetID string, price float64, ts time.Time) {
	m.tracker.AddPoint("price:"+assetID, price, ts)
}

// RecordVolume feeds one notional-volume observation for an asset.
func (m *MarketMonitor) RecordVolume(assetID string, notional float64, ts time.Time) {
	m.tracker.AddPoint("volume:"+assetID, notional, ts)
}

// State classifies an asset's current activity. Escalation order is
// calm, active (volume unusual), volatile (price unusual), extreme.
// Extreme requires both unusual, or an unusual price that is still
// accelerating.
func (m *MarketMonitor) State(assetID string) ActivityState {
	priceM, priceOK := m.tracker.Metrics("price:" + assetID)
	volM, volOK := m.tracker.Metrics("volume:" + assetID)

	state := StateCalm
	if volOK && volM.Unusual {
		state = StateActive
	}
	if priceOK && priceM.Unusual {
		state = StateVolatile
	}
	if priceOK && priceM.Unusual {
		if (volOK && volM.Unusual) || priceM.Direction == DirectionAccelerating {
			state = StateExtreme
		}
	}
	return state
}

// Cleanup forwards to the tracker's periodic sweep.
func (m *MarketMonitor) Cleanup(now time.Time) {
	m.tracker.Cleanup(now)
}
