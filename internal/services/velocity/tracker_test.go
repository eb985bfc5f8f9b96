package velocity

import (
	"math"
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// feed appends evenly spaced samples, one per second.
func feed(t *Tracker, id string, values ...float64) {
	for i, v := range values {
		t.AddPoint(id, v, base.Add(time.Duration(i)*time.Second))
	}
}

func TestVelocityIsDeltaPerSecond(t *testing.T) {
	tr := NewTracker(Config{MinDataPoints: 1})

	tr.AddPoint("m", 1.0, base)
	tr.AddPoint("m", 2.0, base.Add(2*time.Second))

	m, ok := tr.Metrics("m")
	if !ok {
		t.Fatal("expected metrics")
	}
	if math.Abs(m.Current-0.5) > 1e-9 {
		t.Fatalf("velocity = %f, want 0.5", m.Current)
	}
}

func TestInsufficientDataReportsNothing(t *testing.T) {
	tr := NewTracker(Config{})

	feed(tr, "m", 1, 2, 3) // two velocities, default minimum is five
	if _, ok := tr.Metrics("m"); ok {
		t.Fatal("metrics reported below MinDataPoints")
	}
	if _, ok := tr.Metrics("missing"); ok {
		t.Fatal("metrics reported for unknown id")
	}
}

func TestUnusualSpikeFlagged(t *testing.T) {
	tr := NewTracker(Config{})

	// Five steady +1/s velocities, then a +10/s jump.
	feed(tr, "m", 0, 1, 2, 3, 4, 5, 15)

	m, ok := tr.Metrics("m")
	if !ok {
		t.Fatal("expected metrics")
	}
	// velocities: 1,1,1,1,1,10 -> mean 2.5, stddev sqrt(11.25), z ~= 2.236
	if !m.Unusual {
		t.Fatalf("spike not flagged, z = %f", m.ZScore)
	}
	if m.ZScore < 2.0 {
		t.Fatalf("z = %f, want > 2", m.ZScore)
	}
	if m.Direction != DirectionAccelerating {
		t.Fatalf("direction = %s, want accelerating", m.Direction)
	}
}

func TestSteadyStreamIsNotUnusual(t *testing.T) {
	tr := NewTracker(Config{})

	feed(tr, "m", 0, 1, 2, 3, 4, 5)

	m, ok := tr.Metrics("m")
	if !ok {
		t.Fatal("expected metrics")
	}
	// Identical velocities: flat history, current equals mean.
	if m.Unusual {
		t.Fatal("steady stream flagged as unusual")
	}
	if m.Direction != DirectionStable {
		t.Fatalf("direction = %s, want stable", m.Direction)
	}
	if m.StdDev > epsilon {
		t.Fatalf("stddev = %f, want ~0", m.StdDev)
	}
}

func TestNonPositiveDeltaSkipsVelocity(t *testing.T) {
	tr := NewTracker(Config{MinDataPoints: 1})

	tr.AddPoint("m", 1.0, base)
	tr.AddPoint("m", 2.0, base) // same timestamp: skipped
	tr.AddPoint("m", 3.0, base.Add(-time.Second)) // regressed clock: skipped

	if _, ok := tr.Metrics("m"); ok {
		t.Fatal("velocity derived from non-positive time delta")
	}

	tr.AddPoint("m", 4.0, base.Add(time.Second))
	if _, ok := tr.Metrics("m"); !ok {
		t.Fatal("expected metrics after positive delta")
	}
}

func TestVelocityHistoryTrimsToNewest(t *testing.T) {
	tr := NewTracker(Config{MinDataPoints: 1, VelocityCap: 10, VelocityTrim: 5})

	vals := make([]float64, 13)
	for i := range vals {
		vals[i] = float64(i)
	}
	feed(tr, "m", vals...)

	m, ok := tr.Metrics("m")
	if !ok {
		t.Fatal("expected metrics")
	}
	// 12 velocities total: the 11th crosses the cap and trims to the newest
	// 5, the 12th appends on top.
	if m.DataPoints != 6 {
		t.Fatalf("data points = %d, want 6", m.DataPoints)
	}
}

func TestCleanupEvictsStaleSeries(t *testing.T) {
	tr := NewTracker(Config{})

	feed(tr, "a", 1, 2, 3)
	feed(tr, "b", 1, 2, 3)
	if tr.Tracked() != 2 {
		t.Fatalf("tracked = %d, want 2", tr.Tracked())
	}

	tr.Cleanup(base.Add(5 * time.Minute))
	if tr.Tracked() != 2 {
		t.Fatalf("tracked = %d after early sweep, want 2", tr.Tracked())
	}

	tr.Cleanup(base.Add(time.Hour))
	if tr.Tracked() != 0 {
		t.Fatalf("tracked = %d after late sweep, want 0", tr.Tracked())
	}
}
