package velocity

import (
	"math"
	"time"

	"PolyPulse/internal/domain/models"
)

// Direction classifies how a metric's velocity is evolving.
type Direction string

const (
	DirectionAccelerating Direction = "accelerating"
	DirectionDecelerating Direction = "decelerating"
	DirectionStable       Direction = "stable"
)

const epsilon = 1e-9

// Config controls the tracker. Zero values fall back to defaults.
type Config struct {
	MinDataPoints   int           // velocities required before Metrics reports
	ZScoreThreshold float64       // |current-mean|/stddev above this flags unusual
	SampleWindow    time.Duration // raw samples evicted past 2× this window
	VelocityCap     int           // derived history hard cap
	VelocityTrim    int           // keep newest N after hitting the cap
}

// DefaultConfig returns the standard tracker tuning.
func DefaultConfig() Config {
	return Config{
		MinDataPoints:   5,
		ZScoreThreshold: 2.0,
		SampleWindow:    5 * time.Minute,
		VelocityCap:     100,
		VelocityTrim:    50,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinDataPoints <= 0 {
		c.MinDataPoints = d.MinDataPoints
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = d.ZScoreThreshold
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = d.SampleWindow
	}
	if c.VelocityCap <= 0 {
		c.VelocityCap = d.VelocityCap
	}
	if c.VelocityTrim <= 0 || c.VelocityTrim > c.VelocityCap {
		c.VelocityTrim = d.VelocityTrim
	}
}

// Metrics is a point-in-time velocity report for one metric id.
type Metrics struct {
	Current      float64
	Mean         float64
	StdDev       float64
	Acceleration float64
	Direction    Direction
	Unusual      bool
	ZScore       float64
	DataPoints   int
}

// series owns both the raw samples and the derived velocities for one metric
// id, so one sweep evicts both and they can never fall out of step.
type series struct {
	samples    []models.PriceSample
	velocities []models.PriceSample
}

// Tracker derives rate-of-change statistics for arbitrary scalar metrics keyed
// by id. All methods must be called from a single goroutine; the stream
// dispatch loop is the only writer.
type Tracker struct {
	cfg    Config
	series map[string]*series
}

// NewTracker creates a tracker with the given config.
func NewTracker(cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{cfg: cfg, series: make(map[string]*series)}
}

// AddPoint appends a sample and, once two samples exist, derives a velocity
// (Δvalue per second). A non-positive time delta skips that single velocity;
// the venue's ordering is trusted, never re-sorted.
func (t *Tracker) AddPoint(id string, value float64, ts time.Time) {
	s, ok := t.series[id]
	if !ok {
		s = &series{}
		t.series[id] = s
	}

	if n := len(s.samples); n > 0 {
		prev := s.samples[n-1]
		dt := ts.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			v := (value - prev.Value) / dt
			s.velocities = append(s.velocities, models.PriceSample{Value: v, Timestamp: ts})
			if len(s.velocities) > t.cfg.VelocityCap {
				keep := s.velocities[len(s.velocities)-t.cfg.VelocityTrim:]
				s.velocities = append([]models.PriceSample(nil), keep...)
			}
		}
	}
	s.samples = append(s.samples, models.PriceSample{Value: value, Timestamp: ts})
}

// Metrics reports velocity statistics for id. The second return is false until
// MinDataPoints velocities have accumulated.
func (t *Tracker) Metrics(id string) (Metrics, bool) {
	s, ok := t.series[id]
	if !ok || len(s.velocities) < t.cfg.MinDataPoints {
		return Metrics{}, false
	}

	n := len(s.velocities)
	current := s.velocities[n-1].Value

	var sum float64
	for _, v := range s.velocities {
		sum += v.Value
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range s.velocities {
		d := v.Value - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(n))

	var accel float64
	if n >= 2 {
		accel = current - s.velocities[n-2].Value
	}

	m := Metrics{
		Current:      current,
		Mean:         mean,
		StdDev:       stddev,
		Acceleration: accel,
		Direction:    classify(accel, stddev),
		DataPoints:   n,
	}
	if stddev > epsilon {
		m.ZScore = (current - mean) / stddev
		m.Unusual = math.Abs(m.ZScore) > t.cfg.ZScoreThreshold
	} else {
		// Degenerate flat history: any departure from the mean is unusual.
		m.Unusual = math.Abs(current-mean) > epsilon
	}
	return m, true
}

// classify applies a half-stddev deadband to the acceleration.
func classify(accel, stddev float64) Direction {
	deadband := stddev / 2
	switch {
	case accel > deadband:
		return DirectionAccelerating
	case accel < -deadband:
		return DirectionDecelerating
	default:
		return DirectionStable
	}
}

// Cleanup evicts raw samples older than 2× the sample window and drops series
// that emptied out. Derived velocities are count-capped, not time-evicted.
func (t *Tracker) Cleanup(now time.Time) {
	cutoff := now.Add(-2 * t.cfg.SampleWindow)
	for id, s := range t.series {
		i := 0
		for i < len(s.samples) && s.samples[i].Timestamp.Before(cutoff) {
			i++
		}
		if i > 0 {
			s.samples = append([]models.PriceSample(nil), s.samples[i:]...)
		}
		if len(s.samples) == 0 {
			delete(t.series, id)
		}
	}
}

// Tracked returns the number of live metric series.
func (t *Tracker) Tracked() int { return len(t.series) }
