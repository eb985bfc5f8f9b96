package velocity

import (
	"testing"
	"time"
)

// seed feeds one metric stream with evenly spaced values.
func seed(m *MarketMonitor, record func(string, float64, time.Time), asset string, values ...float64) {
	for i, v := range values {
		record(asset, v, base.Add(time.Duration(i)*time.Second))
	}
}

func TestStateCalmWithoutData(t *testing.T) {
	m := NewMarketMonitor(Config{})
	if got := m.State("tok"); got != StateCalm {
		t.Fatalf("state = %s, want calm", got)
	}
}

func TestStateActiveOnVolumeOnly(t *testing.T) {
	m := NewMarketMonitor(Config{})

	// Volume velocity spikes; price stream has no data at all.
	seed(m, m.RecordVolume, "tok", 0, 1, 2, 3, 4, 5, 15)

	if got := m.State("tok"); got != StateActive {
		t.Fatalf("state = %s, want active", got)
	}
}

func TestStateVolatileOnDeceleratingPrice(t *testing.T) {
	m := NewMarketMonitor(Config{})

	// Price velocity collapses: unusual but decelerating, volume steady.
	seed(m, m.RecordPrice, "tok", 0, 1, 2, 3, 4, 5, -5)
	seed(m, m.RecordVolume, "tok", 0, 1, 2, 3, 4, 5)

	if got := m.State("tok"); got != StateVolatile {
		t.Fatalf("state = %s, want volatile", got)
	}
}

func TestStateExtremeOnAcceleratingPrice(t *testing.T) {
	m := NewMarketMonitor(Config{})

	// Price unusual and still accelerating escalates past volatile even
	// with a quiet volume stream.
	seed(m, m.RecordPrice, "tok", 0, 1, 2, 3, 4, 5, 15)
	seed(m, m.RecordVolume, "tok", 0, 1, 2, 3, 4, 5)

	if got := m.State("tok"); got != StateExtreme {
		t.Fatalf("state = %s, want extreme", got)
	}
}

func TestStateExtremeOnBothUnusual(t *testing.T) {
	m := NewMarketMonitor(Config{})

	seed(m, m.RecordPrice, "tok", 0, 1, 2, 3, 4, 5, -5)
	seed(m, m.RecordVolume, "tok", 0, 1, 2, 3, 4, 5, 15)

	if got := m.State("tok"); got != StateExtreme {
		t.Fatalf("state = %s, want extreme", got)
	}
}

func TestMonitorCleanup(t *testing.T) {
	m := NewMarketMonitor(Config{})
	seed(m, m.RecordPrice, "tok", 1, 2, 3)

	m.Cleanup(base.Add(time.Hour))
	if m.Tracker().Tracked() != 0 {
		t.Fatalf("tracked = %d after sweep, want 0", m.Tracker().Tracked())
	}
}
