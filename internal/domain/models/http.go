package models

// RecentAlertsRequest filters the in-memory alert ring.
type RecentAlertsRequest struct {
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Type  string `query:"type" validate:"omitempty,oneof=flash_move whale_trade volume_spike spread_collapse book_imbalance"`
}

// MarketsRequest adds or removes monitored assets.
type MarketsRequest struct {
	AssetIDs []string `json:"asset_ids" validate:"required,min=1,max=100,dive,required"`
}

// MarketStatus describes one monitored asset.
type MarketStatus struct {
	AssetID  string `json:"asset_id"`
	Question string `json:"question,omitempty"`
	Activity string `json:"activity"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Connected bool `json:"connected"`
	Markets   int  `json:"markets"`
}
