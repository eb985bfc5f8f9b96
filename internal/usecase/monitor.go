package usecase

import (
	"context"
	"sync"
	"time"

	"PolyPulse/internal/domain/models"
	"PolyPulse/internal/domain/repository"
	mid "PolyPulse/internal/middleware"
	"PolyPulse/internal/services/anomaly"
	"PolyPulse/internal/services/velocity"
	applogger "PolyPulse/pkg/logger"
)

// AlertCallback receives every emitted alert, dispatched synchronously from
// the event loop. Callbacks must return quickly and never block.
type AlertCallback func(*models.Alert)

// MonitorConfig tunes the orchestrator.
type MonitorConfig struct {
	CleanupInterval time.Duration // periodic history sweep, default 60s
	RecentAlerts    int           // in-memory ring kept for the HTTP surface
}

func (c *MonitorConfig) applyDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.RecentAlerts <= 0 {
		c.RecentAlerts = 200
	}
}

// MarketMonitor wires the stream into the anomaly detector and velocity
// monitor, owns the single dispatch goroutine, and fans alerts out to
// registered callbacks and the delivery pipeline. All detector and tracker
// state is mutated only from the dispatch goroutine.
type MarketMonitor struct {
	cfg      MonitorConfig
	stream   repository.MarketStream
	detector *anomaly.Detector
	velocity *velocity.MarketMonitor
	pipeline *mid.AlertPipeline
	titles   repository.MarketTitles
	metrics  repository.Metrics
	log      *applogger.Logger

	cbMu      sync.RWMutex
	callbacks map[int]AlertCallback
	nextCB    int

	recentMu sync.Mutex
	recent   []*models.Alert

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewMarketMonitor creates the orchestrator. pipeline and titles may be nil.
func NewMarketMonitor(
	cfg MonitorConfig,
	stream repository.MarketStream,
	detector *anomaly.Detector,
	vel *velocity.MarketMonitor,
	pipeline *mid.AlertPipeline,
	titles repository.MarketTitles,
	metrics repository.Metrics,
	log *applogger.Logger,
) *MarketMonitor {
	cfg.applyDefaults()
	return &MarketMonitor{
		cfg:       cfg,
		stream:    stream,
		detector:  detector,
		velocity:  vel,
		pipeline:  pipeline,
		titles:    titles,
		metrics:   metrics,
		log:       log,
		callbacks: make(map[int]AlertCallback),
	}
}

// RegisterAlertCallback adds a sink; the returned id unregisters it.
func (m *MarketMonitor) RegisterAlertCallback(cb AlertCallback) int {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.nextCB++
	m.callbacks[m.nextCB] = cb
	return m.nextCB
}

// UnregisterAlertCallback removes a previously registered sink.
func (m *MarketMonitor) UnregisterAlertCallback(id int) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	delete(m.callbacks, id)
}

// Start connects the stream and launches the dispatch loop. Idempotent.
func (m *MarketMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.stream.Connect(ctx); err != nil {
		// The stream keeps retrying with backoff on its own; dispatch still
		// has to run so events flow once it succeeds.
		if m.log != nil {
			m.log.Warn("initial connect failed, reconnect scheduled", applogger.Error(err))
		}
	}
	if m.pipeline != nil {
		m.pipeline.Start(ctx)
	}
	go m.dispatch(ctx)
	return nil
}

// Stop tears down the dispatch loop, pipeline, and stream.
func (m *MarketMonitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.done
	if m.pipeline != nil {
		m.pipeline.Stop()
	}
	return m.stream.Disconnect()
}

// AddMarkets begins monitoring assets without reconnecting the stream.
func (m *MarketMonitor) AddMarkets(ctx context.Context, assetIDs ...string) error {
	return m.stream.Subscribe(ctx, assetIDs...)
}

// RemoveMarkets stops monitoring assets. Their histories drain out through
// the periodic sweep; there is no explicit per-asset delete.
func (m *MarketMonitor) RemoveMarkets(ctx context.Context, assetIDs ...string) error {
	return m.stream.Unsubscribe(ctx, assetIDs...)
}

// MonitoredMarkets returns the current subscription set.
func (m *MarketMonitor) MonitoredMarkets() []string {
	return m.stream.Subscribed()
}

// ActivityState reports the aggregate velocity classification for one asset.
func (m *MarketMonitor) ActivityState(assetID string) velocity.ActivityState {
	return m.velocity.State(assetID)
}

// IsConnected reports the stream link state.
func (m *MarketMonitor) IsConnected() bool { return m.stream.IsConnected() }

// RecentAlerts returns up to n of the most recent alerts, newest first.
func (m *MarketMonitor) RecentAlerts(n int) []*models.Alert {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	if n <= 0 || n > len(m.recent) {
		n = len(m.recent)
	}
	out := make([]*models.Alert, 0, n)
	for i := len(m.recent) - 1; i >= len(m.recent)-n; i-- {
		out = append(out, m.recent[i])
	}
	return out
}

// dispatch is the single event-loop goroutine: stream events, transport
// errors, and the cleanup tick all arrive here, so detector and tracker state
// has exactly one writer.
func (m *MarketMonitor) dispatch(ctx context.Context) {
	defer close(m.done)

	sweep := time.NewTicker(m.cfg.CleanupInterval)
	defer sweep.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case err := <-m.stream.Errors():
			if err != nil && m.log != nil {
				m.log.Warn("stream error", applogger.Error(err))
			}
		case now := <-sweep.C:
			start := time.Now()
			m.detector.Cleanup(now)
			m.velocity.Cleanup(now)
			if m.metrics != nil {
				m.metrics.RecordLatency("cleanup", time.Since(start).Seconds())
			}
		case ev, ok := <-m.stream.Events():
			if !ok {
				return
			}
			m.handleEvent(ev)
		}
	}
}

func (m *MarketMonitor) handleEvent(ev models.MarketEvent) {
	start := time.Now()
	var alerts []*models.Alert

	switch e := ev.(type) {
	case *models.BookSnapshot:
		alerts = m.detector.OnBook(e)
		if mid := e.MidPrice(); mid > 0 {
			m.velocity.RecordPrice(e.AssetID, mid, e.Timestamp)
			if m.metrics != nil {
				m.metrics.RecordLastPrice(e.AssetID, mid)
			}
		}
	case *models.Trade:
		alerts = m.detector.OnTrade(e)
		m.velocity.RecordPrice(e.AssetID, e.Price, e.Timestamp)
		m.velocity.RecordVolume(e.AssetID, e.Notional(), e.Timestamp)
		if m.metrics != nil {
			m.metrics.RecordLastPrice(e.AssetID, e.Price)
		}
	case *models.PriceChange:
		alerts = m.detector.OnPriceChange(e)
	}

	for _, a := range alerts {
		m.deliver(a)
	}
	if m.metrics != nil {
		m.metrics.RecordLatency("dispatch", time.Since(start).Seconds())
	}
}

// deliver enriches and fans one alert out: synchronous callbacks, the recent
// ring, and the async delivery pipeline. Nothing here blocks the event loop;
// title lookup is cache-only and pipeline handoff is a buffered enqueue.
func (m *MarketMonitor) deliver(a *models.Alert) {
	if m.titles != nil {
		if q, ok := m.titles.Question(context.Background(), a.AssetID); ok {
			a.Question = q
		}
	}
	if m.metrics != nil {
		m.metrics.RecordAlert(string(a.Type))
	}

	m.recentMu.Lock()
	m.recent = append(m.recent, a)
	if len(m.recent) > m.cfg.RecentAlerts {
		m.recent = m.recent[len(m.recent)-m.cfg.RecentAlerts:]
	}
	m.recentMu.Unlock()

	m.cbMu.RLock()
	for _, cb := range m.callbacks {
		cb(a)
	}
	m.cbMu.RUnlock()

	if m.pipeline != nil {
		m.pipeline.Enqueue(a)
	}
}
