package anomaly

import (
	"fmt"
	"math"
	"time"

	"PolyPulse/internal/domain/models"
	imetrics "PolyPulse/internal/service/metrics"
	applogger "PolyPulse/pkg/logger"
)

// Config controls every detection rule. Zero values fall back to defaults.
type Config struct {
	FlashWindow       time.Duration // lookback for flash-move comparison
	FlashThreshold    float64       // relative move that triggers a flash alert
	WhaleMinNotional  float64       // dollar notional for a whale trade
	SpikeRecentWindow time.Duration // recent sub-window for volume spike
	SpikeBaseWindow   time.Duration // baseline window (recent sub-window excluded)
	SpikeMultiple     float64       // recent/baseline ratio that triggers
	SpreadWindow      time.Duration // trailing window for average spread
	SpreadContraction float64       // fractional tightening that triggers
	ImbalanceRatio    float64       // |book imbalance| that triggers
	Cooldown          time.Duration // per (rule, asset) alert suppression window
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		FlashWindow:       5 * time.Minute,
		FlashThreshold:    0.10,
		WhaleMinNotional:  5000,
		SpikeRecentWindow: 1 * time.Minute,
		SpikeBaseWindow:   10 * time.Minute,
		SpikeMultiple:     3.0,
		SpreadWindow:      10 * time.Minute,
		SpreadContraction: 0.50,
		ImbalanceRatio:    0.70,
		Cooldown:          5 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FlashWindow <= 0 {
		c.FlashWindow = d.FlashWindow
	}
	if c.FlashThreshold <= 0 {
		c.FlashThreshold = d.FlashThreshold
	}
	if c.WhaleMinNotional <= 0 {
		c.WhaleMinNotional = d.WhaleMinNotional
	}
	if c.SpikeRecentWindow <= 0 {
		c.SpikeRecentWindow = d.SpikeRecentWindow
	}
	if c.SpikeBaseWindow <= 0 {
		c.SpikeBaseWindow = d.SpikeBaseWindow
	}
	if c.SpikeMultiple <= 0 {
		c.SpikeMultiple = d.SpikeMultiple
	}
	if c.SpreadWindow <= 0 {
		c.SpreadWindow = d.SpreadWindow
	}
	if c.SpreadContraction <= 0 {
		c.SpreadContraction = d.SpreadContraction
	}
	if c.ImbalanceRatio <= 0 {
		c.ImbalanceRatio = d.ImbalanceRatio
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
}

// longestWindow is the retention basis: the sweep keeps 2× this much history.
func (c *Config) longestWindow() time.Duration {
	w := c.FlashWindow
	if c.SpikeBaseWindow > w {
		w = c.SpikeBaseWindow
	}
	if c.SpreadWindow > w {
		w = c.SpreadWindow
	}
	return w
}

// WinRateFunc optionally supplies a historical large-trader win rate in [0,1]
// for an asset; it feeds the insider score's 0–20 point term.
type WinRateFunc func(assetID string) (float64, bool)

// Option configures a Detector.
type Option func(*Detector)

// WithWinRate installs the optional historical win-rate source.
func WithWinRate(fn WinRateFunc) Option {
	return func(d *Detector) { d.winRate = fn }
}

// Detector evaluates five independent rules over per-asset rolling histories.
// All methods must be called from the single stream-dispatch goroutine; rule
// evaluation is synchronous, O(window size), and never does blocking I/O.
type Detector struct {
	cfg       Config
	log       *applogger.Logger
	states    map[string]*marketState
	cooldowns map[string]time.Time
	winRate   WinRateFunc
}

// New creates a detector.
func New(cfg Config, log *applogger.Logger, opts ...Option) *Detector {
	cfg.applyDefaults()
	imetrics.Register()
	d := &Detector{
		cfg:       cfg,
		log:       log,
		states:    make(map[string]*marketState),
		cooldowns: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) state(assetID string) *marketState {
	s, ok := d.states[assetID]
	if !ok {
		s = &marketState{}
		d.states[assetID] = s
	}
	return s
}

// emit applies the per (rule, asset) cooldown. It returns nil when the alert
// key fired inside the cooldown window.
func (d *Detector) emit(a *models.Alert) *models.Alert {
	key := a.Key()
	if last, ok := d.cooldowns[key]; ok && a.Timestamp.Sub(last) < d.cfg.Cooldown {
		imetrics.DetectionSuppressed.WithLabelValues(string(a.Type)).Inc()
		return nil
	}
	d.cooldowns[key] = a.Timestamp
	imetrics.DetectionAlerts.WithLabelValues(string(a.Type)).Inc()
	if d.log != nil {
		d.log.Info("alert",
			applogger.String("type", string(a.Type)),
			applogger.String("asset", a.AssetID),
			applogger.String("direction", string(a.Direction)),
			applogger.Any("magnitude", a.Magnitude),
		)
	}
	return a
}

// OnBook records the snapshot's mid price and spread, then evaluates the
// imbalance, spread-collapse, and flash-move rules.
func (d *Detector) OnBook(b *models.BookSnapshot) []*models.Alert {
	start := time.Now()
	defer func() {
		imetrics.DetectionLatency.WithLabelValues("book").Observe(time.Since(start).Seconds())
	}()

	s := d.state(b.AssetID)
	var alerts []*models.Alert

	if a := d.checkImbalance(b); a != nil {
		if a = d.emit(a); a != nil {
			alerts = append(alerts, a)
		}
	}

	if spread := b.Spread(); spread > 0 {
		if a := d.checkSpreadCollapse(b, s, spread); a != nil {
			if a = d.emit(a); a != nil {
				alerts = append(alerts, a)
			}
		}
		s.spreads = append(s.spreads, models.PriceSample{Value: spread, Timestamp: b.Timestamp})
	}

	if mid := b.MidPrice(); mid > 0 {
		s.prices = append(s.prices, models.PriceSample{Value: mid, Timestamp: b.Timestamp})
		if a := d.checkFlashMove(b.AssetID, s, b.Timestamp); a != nil {
			if a = d.emit(a); a != nil {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

// OnTrade records the trade's price and notional, then evaluates the whale,
// volume-spike, and flash-move rules.
func (d *Detector) OnTrade(t *models.Trade) []*models.Alert {
	start := time.Now()
	defer func() {
		imetrics.DetectionLatency.WithLabelValues("trade").Observe(time.Since(start).Seconds())
	}()

	s := d.state(t.AssetID)
	var alerts []*models.Alert

	// Whale check reads the trailing average notional before this trade lands
	// in the history, so the trade cannot dilute its own multiple.
	if a := d.checkWhale(t, s); a != nil {
		if a = d.emit(a); a != nil {
			alerts = append(alerts, a)
		}
	}

	s.notionals = append(s.notionals, models.PriceSample{Value: t.Notional(), Timestamp: t.Timestamp})
	if a := d.checkVolumeSpike(t.AssetID, s, t.Timestamp); a != nil {
		if a = d.emit(a); a != nil {
			alerts = append(alerts, a)
		}
	}

	if t.Price > 0 {
		s.prices = append(s.prices, models.PriceSample{Value: t.Price, Timestamp: t.Timestamp})
		if a := d.checkFlashMove(t.AssetID, s, t.Timestamp); a != nil {
			if a = d.emit(a); a != nil {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

// OnPriceChange re-evaluates the flash-move rule for a synthesized price jump.
// The underlying book or trade event already appended the price sample.
func (d *Detector) OnPriceChange(p *models.PriceChange) []*models.Alert {
	s, ok := d.states[p.AssetID]
	if !ok {
		return nil
	}
	a := d.checkFlashMove(p.AssetID, s, p.Timestamp)
	if a == nil {
		return nil
	}
	if a = d.emit(a); a == nil {
		return nil
	}
	return []*models.Alert{a}
}

func (d *Detector) checkFlashMove(assetID string, s *marketState, now time.Time) *models.Alert {
	windowStart := now.Add(-d.cfg.FlashWindow)

	// Earliest retained sample inside the window vs the latest one.
	var first, last *models.PriceSample
	for i := range s.prices {
		if s.prices[i].Timestamp.Before(windowStart) {
			continue
		}
		if first == nil {
			first = &s.prices[i]
		}
		last = &s.prices[i]
	}
	if first == nil || last == nil || first == last || first.Value == 0 {
		return nil
	}

	change := (last.Value - first.Value) / first.Value
	if math.Abs(change) < d.cfg.FlashThreshold {
		return nil
	}

	dir := models.DirectionBullish
	if change < 0 {
		dir = models.DirectionBearish
	}
	return &models.Alert{
		Type:      models.AlertFlashMove,
		AssetID:   assetID,
		Magnitude: math.Abs(change),
		Direction: dir,
		Timestamp: now,
		Details: map[string]float64{
			"from_price": first.Value,
			"to_price":   last.Value,
			"change_pct": change * 100,
		},
		Reasoning: fmt.Sprintf("price moved %+.1f%% over %s (%.3f → %.3f)",
			change*100, d.cfg.FlashWindow, first.Value, last.Value),
	}
}

func (d *Detector) checkWhale(t *models.Trade, s *marketState) *models.Alert {
	notional := t.Notional()
	if notional < d.cfg.WhaleMinNotional {
		return nil
	}

	score := d.insiderScore(t, s)
	dir := models.DirectionBullish
	if t.Side == "SELL" {
		dir = models.DirectionBearish
	}
	return &models.Alert{
		Type:      models.AlertWhaleTrade,
		AssetID:   t.AssetID,
		Magnitude: notional / d.cfg.WhaleMinNotional,
		Direction: dir,
		Timestamp: t.Timestamp,
		Details: map[string]float64{
			"notional":      notional,
			"price":         t.Price,
			"size":          t.Size,
			"insider_score": score,
		},
		Reasoning: fmt.Sprintf("%s of $%.0f at %.3f (insider score %.0f/100)",
			t.Side, notional, t.Price, score),
		InsiderScore: &score,
	}
}

func (d *Detector) checkVolumeSpike(assetID string, s *marketState, now time.Time) *models.Alert {
	recentFrom := now.Add(-d.cfg.SpikeRecentWindow)
	baseFrom := now.Add(-d.cfg.SpikeBaseWindow)

	recentMean, recentN := windowMean(s.notionals, recentFrom, now.Add(time.Nanosecond))
	baseMean, baseN := windowMean(s.notionals, baseFrom, recentFrom)
	// Zero or missing baseline means no signal, never a division.
	if recentN == 0 || baseN == 0 || baseMean == 0 {
		return nil
	}

	ratio := recentMean / baseMean
	if ratio < d.cfg.SpikeMultiple {
		return nil
	}
	return &models.Alert{
		Type:      models.AlertVolumeSpike,
		AssetID:   assetID,
		Magnitude: ratio,
		Direction: models.DirectionNeutral,
		Timestamp: now,
		Details: map[string]float64{
			"recent_mean_notional":   recentMean,
			"baseline_mean_notional": baseMean,
			"ratio":                  ratio,
		},
		Reasoning: fmt.Sprintf("volume running %.1fx baseline ($%.0f vs $%.0f mean notional)",
			ratio, recentMean, baseMean),
	}
}

func (d *Detector) checkSpreadCollapse(b *models.BookSnapshot, s *marketState, spread float64) *models.Alert {
	avg, ok := trailingMean(s.spreads)
	if !ok || avg == 0 {
		return nil
	}
	contraction := (avg - spread) / avg
	if contraction < d.cfg.SpreadContraction {
		return nil
	}
	return &models.Alert{
		Type:      models.AlertSpreadCollapse,
		AssetID:   b.AssetID,
		Magnitude: contraction,
		Direction: models.DirectionNeutral,
		Timestamp: b.Timestamp,
		Details: map[string]float64{
			"spread":         spread,
			"average_spread": avg,
			"contraction":    contraction,
		},
		Reasoning: fmt.Sprintf("spread tightened %.0f%% (%.4f vs %.4f average), liquidity crowding in",
			contraction*100, spread, avg),
	}
}

func (d *Detector) checkImbalance(b *models.BookSnapshot) *models.Alert {
	ratio := b.Imbalance()
	if math.Abs(ratio) < d.cfg.ImbalanceRatio {
		return nil
	}
	dir := models.DirectionBullish
	if ratio < 0 {
		dir = models.DirectionBearish
	}
	bid, ask := b.Depth()
	return &models.Alert{
		Type:      models.AlertBookImbalance,
		AssetID:   b.AssetID,
		Magnitude: math.Abs(ratio),
		Direction: dir,
		Timestamp: b.Timestamp,
		Details: map[string]float64{
			"imbalance": ratio,
			"bid_depth": bid,
			"ask_depth": ask,
		},
		Reasoning: fmt.Sprintf("book imbalance %+.2f (%.0f bid vs %.0f ask)", ratio, bid, ask),
	}
}

// Cleanup prunes every history past 2× the longest configured window and drops
// empty states plus expired cooldown entries. Memory stays bounded regardless
// of asset count or feed rate.
func (d *Detector) Cleanup(now time.Time) {
	cutoff := now.Add(-2 * d.cfg.longestWindow())
	for id, s := range d.states {
		s.prices = prune(s.prices, cutoff)
		s.notionals = prune(s.notionals, cutoff)
		s.spreads = prune(s.spreads, cutoff)
		if s.empty() {
			delete(d.states, id)
		}
	}
	for key, last := range d.cooldowns {
		if now.Sub(last) >= d.cfg.Cooldown {
			delete(d.cooldowns, key)
		}
	}
}

// TrackedAssets returns the number of assets with live state.
func (d *Detector) TrackedAssets() int { return len(d.states) }
