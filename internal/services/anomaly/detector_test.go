package anomaly

import (
	"math"
	"testing"
	"time"

	"PolyPulse/internal/domain/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func trade(asset string, price, size float64, side string, at time.Time) *models.Trade {
	return &models.Trade{AssetID: asset, Timestamp: at, Price: price, Size: size, Side: side}
}

func book(asset string, bid, bidSize, ask, askSize float64, at time.Time) *models.BookSnapshot {
	return &models.BookSnapshot{
		AssetID:   asset,
		Timestamp: at,
		Bids:      []models.PriceLevel{{Price: bid, Size: bidSize}},
		Asks:      []models.PriceLevel{{Price: ask, Size: askSize}},
	}
}

func onlyType(t *testing.T, alerts []*models.Alert, want models.AlertType) *models.Alert {
	t.Helper()
	var found *models.Alert
	for _, a := range alerts {
		if a.Type == want {
			if found != nil {
				t.Fatalf("duplicate %s alert", want)
			}
			found = a
		}
	}
	if found == nil {
		t.Fatalf("expected %s alert, got %v", want, alerts)
	}
	return found
}

func TestWhaleTradeEmitsInsiderScore(t *testing.T) {
	d := New(Config{}, nil)

	// Two small trades seed the notional history and market age.
	d.OnTrade(trade("tok", 0.50, 200, "BUY", t0))
	d.OnTrade(trade("tok", 0.50, 200, "BUY", t0.Add(time.Minute)))

	alerts := d.OnTrade(trade("tok", 0.92, 9782, "BUY", t0.Add(10*time.Minute)))
	a := onlyType(t, alerts, models.AlertWhaleTrade)

	if a.Direction != models.DirectionBullish {
		t.Fatalf("direction = %s, want bullish", a.Direction)
	}
	wantMag := 0.92 * 9782 / 5000
	if math.Abs(a.Magnitude-wantMag) > 1e-9 {
		t.Fatalf("magnitude = %f, want %f", a.Magnitude, wantMag)
	}
	if a.InsiderScore == nil {
		t.Fatal("missing insider score")
	}
	// price 0.92: +25 conviction, +8 extreme tier; notional 90x avg: +25 cap;
	// age 10m: +15. No win-rate source.
	if *a.InsiderScore != 73 {
		t.Fatalf("insider score = %f, want 73", *a.InsiderScore)
	}
}

func TestWhaleBelowThresholdIsSilent(t *testing.T) {
	d := New(Config{}, nil)
	for _, a := range d.OnTrade(trade("tok", 0.50, 9000, "SELL", t0)) {
		if a.Type == models.AlertWhaleTrade {
			t.Fatalf("unexpected whale alert for $%.0f", 0.50*9000)
		}
	}
}

func TestInsiderScoreClampedTo100(t *testing.T) {
	d := New(Config{}, nil, WithWinRate(func(string) (float64, bool) { return 1.5, true }))

	d.OnTrade(trade("tok", 0.96, 10, "BUY", t0))
	alerts := d.OnTrade(trade("tok", 0.96, 100000, "BUY", t0.Add(time.Minute)))
	a := onlyType(t, alerts, models.AlertWhaleTrade)

	// Every factor maxed and the win rate clamped to 1.0; total must not
	// exceed 100.
	if *a.InsiderScore != 100 {
		t.Fatalf("insider score = %f, want 100", *a.InsiderScore)
	}
}

func TestFlashMoveDetection(t *testing.T) {
	d := New(Config{}, nil)

	d.OnTrade(trade("tok", 0.50, 100, "BUY", t0))
	alerts := d.OnTrade(trade("tok", 0.56, 100, "BUY", t0.Add(2*time.Minute)))
	a := onlyType(t, alerts, models.AlertFlashMove)

	if a.Direction != models.DirectionBullish {
		t.Fatalf("direction = %s, want bullish", a.Direction)
	}
	if math.Abs(a.Magnitude-0.12) > 1e-9 {
		t.Fatalf("magnitude = %f, want 0.12", a.Magnitude)
	}
}

func TestFlashMoveIgnoresSamplesOutsideWindow(t *testing.T) {
	d := New(Config{}, nil)

	d.OnTrade(trade("tok", 0.50, 100, "BUY", t0))
	// Six minutes later the old sample is outside the 5m window; the move
	// is measured against nothing and stays silent.
	for _, a := range d.OnTrade(trade("tok", 0.60, 100, "BUY", t0.Add(6*time.Minute))) {
		if a.Type == models.AlertFlashMove {
			t.Fatal("flash move fired across expired window")
		}
	}
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	d := New(Config{}, nil)

	first := d.OnTrade(trade("tok", 0.50, 20000, "BUY", t0))
	onlyType(t, first, models.AlertWhaleTrade)

	// Same rule, same asset, one minute later: suppressed.
	again := d.OnTrade(trade("tok", 0.50, 20000, "BUY", t0.Add(time.Minute)))
	for _, a := range again {
		if a.Type == models.AlertWhaleTrade {
			t.Fatal("whale alert inside cooldown window")
		}
	}

	// A different asset is an independent cooldown key.
	other := d.OnTrade(trade("tok2", 0.50, 20000, "BUY", t0.Add(time.Minute)))
	onlyType(t, other, models.AlertWhaleTrade)

	// Past the cooldown the rule fires again.
	later := d.OnTrade(trade("tok", 0.50, 20000, "BUY", t0.Add(6*time.Minute)))
	onlyType(t, later, models.AlertWhaleTrade)
}

func TestVolumeSpikeNeedsBaseline(t *testing.T) {
	d := New(Config{}, nil)

	// All volume inside the recent window: no baseline, no signal.
	d.OnTrade(trade("tok", 0.50, 100, "BUY", t0))
	for _, a := range d.OnTrade(trade("tok", 0.50, 800, "BUY", t0.Add(30*time.Second))) {
		if a.Type == models.AlertVolumeSpike {
			t.Fatal("volume spike fired with empty baseline")
		}
	}
}

func TestVolumeSpikeAgainstBaseline(t *testing.T) {
	d := New(Config{}, nil)

	// Baseline: $50 mean notional, several minutes back.
	for i := 0; i < 3; i++ {
		d.OnTrade(trade("tok", 0.50, 100, "BUY", t0.Add(time.Duration(i)*time.Minute)))
	}
	// Recent burst: $200 notional, 4x the baseline mean.
	alerts := d.OnTrade(trade("tok", 0.50, 400, "BUY", t0.Add(8*time.Minute)))
	a := onlyType(t, alerts, models.AlertVolumeSpike)

	if math.Abs(a.Magnitude-4.0) > 1e-9 {
		t.Fatalf("ratio = %f, want 4.0", a.Magnitude)
	}
	if a.Direction != models.DirectionNeutral {
		t.Fatalf("direction = %s, want neutral", a.Direction)
	}
}

func TestSpreadCollapse(t *testing.T) {
	d := New(Config{}, nil)

	// Steady 0.10 spread builds the trailing average.
	for i := 0; i < 5; i++ {
		d.OnBook(book("tok", 0.45, 50, 0.55, 50, t0.Add(time.Duration(i)*time.Minute)))
	}
	// Spread tightens to 0.04: a 60% contraction.
	alerts := d.OnBook(book("tok", 0.48, 50, 0.52, 50, t0.Add(5*time.Minute)))
	a := onlyType(t, alerts, models.AlertSpreadCollapse)

	if math.Abs(a.Magnitude-0.6) > 1e-9 {
		t.Fatalf("contraction = %f, want 0.6", a.Magnitude)
	}
}

func TestBookImbalance(t *testing.T) {
	d := New(Config{}, nil)

	alerts := d.OnBook(book("tok", 0.45, 90, 0.55, 10, t0))
	a := onlyType(t, alerts, models.AlertBookImbalance)

	if a.Direction != models.DirectionBullish {
		t.Fatalf("direction = %s, want bullish", a.Direction)
	}
	if math.Abs(a.Magnitude-0.8) > 1e-9 {
		t.Fatalf("magnitude = %f, want 0.8", a.Magnitude)
	}

	// Ask-heavy book flips the direction.
	alerts = d.OnBook(book("tok2", 0.45, 10, 0.55, 90, t0))
	a = onlyType(t, alerts, models.AlertBookImbalance)
	if a.Direction != models.DirectionBearish {
		t.Fatalf("direction = %s, want bearish", a.Direction)
	}
}

func TestBalancedBookIsSilent(t *testing.T) {
	d := New(Config{}, nil)
	for _, a := range d.OnBook(book("tok", 0.45, 50, 0.55, 50, t0)) {
		t.Fatalf("unexpected alert %s for balanced book", a.Type)
	}
}

func TestPriceChangeReusesExistingHistory(t *testing.T) {
	d := New(Config{}, nil)

	// No state yet: a synthesized jump for an unknown asset is a no-op.
	if got := d.OnPriceChange(&models.PriceChange{AssetID: "tok", Timestamp: t0, OldPrice: 0.5, NewPrice: 0.6}); got != nil {
		t.Fatalf("expected nil for unknown asset, got %v", got)
	}

	d.OnTrade(trade("tok", 0.50, 100, "BUY", t0))
	d.OnTrade(trade("tok", 0.58, 100, "BUY", t0.Add(time.Minute)))
	// The trade already consumed the flash alert; the synthesized event is
	// suppressed by cooldown rather than double-firing.
	got := d.OnPriceChange(&models.PriceChange{AssetID: "tok", Timestamp: t0.Add(time.Minute), OldPrice: 0.50, NewPrice: 0.58})
	if got != nil {
		t.Fatalf("expected cooldown suppression, got %v", got)
	}
}

func TestCleanupEvictsStaleState(t *testing.T) {
	d := New(Config{}, nil)

	d.OnTrade(trade("tok", 0.50, 100, "BUY", t0))
	if d.TrackedAssets() != 1 {
		t.Fatalf("tracked = %d, want 1", d.TrackedAssets())
	}

	// Inside 2x the longest window the state survives.
	d.Cleanup(t0.Add(15 * time.Minute))
	if d.TrackedAssets() != 1 {
		t.Fatalf("tracked = %d after early sweep, want 1", d.TrackedAssets())
	}

	d.Cleanup(t0.Add(time.Hour))
	if d.TrackedAssets() != 0 {
		t.Fatalf("tracked = %d after late sweep, want 0", d.TrackedAssets())
	}
}
