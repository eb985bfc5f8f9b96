package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PolyPulse/internal/domain/models"
	"PolyPulse/internal/domain/repository"
	"PolyPulse/internal/services/anomaly"
	"PolyPulse/internal/services/velocity"
)

// fakeStream is an in-memory MarketStream fed directly by tests.
type fakeStream struct {
	mu          sync.Mutex
	subs        map[string]struct{}
	connected   bool
	connectErr  error
	disconnects int

	events chan models.MarketEvent
	errs   chan error
}

var _ repository.MarketStream = (*fakeStream)(nil)

func newFakeStream() *fakeStream {
	return &fakeStream{
		subs:   make(map[string]struct{}),
		events: make(chan models.MarketEvent, 16),
		errs:   make(chan error, 4),
	}
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeStream) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeStream) Subscribe(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.subs[id] = struct{}{}
	}
	return nil
}

func (f *fakeStream) Unsubscribe(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.subs, id)
	}
	return nil
}

func (f *fakeStream) Events() <-chan models.MarketEvent { return f.events }
func (f *fakeStream) Errors() <-chan error              { return f.errs }

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for id := range f.subs {
		out = append(out, id)
	}
	return out
}

type staticTitles map[string]string

func (s staticTitles) Question(_ context.Context, assetID string) (string, bool) {
	q, ok := s[assetID]
	return q, ok
}

func newTestMonitor(stream repository.MarketStream, titles repository.MarketTitles) *MarketMonitor {
	return NewMarketMonitor(
		MonitorConfig{CleanupInterval: time.Hour},
		stream,
		anomaly.New(anomaly.Config{}, nil),
		velocity.NewMarketMonitor(velocity.Config{}),
		nil,
		titles,
		nil,
		nil,
	)
}

func TestAddRemoveMarkets(t *testing.T) {
	stream := newFakeStream()
	m := newTestMonitor(stream, nil)

	if err := m.AddMarkets(context.Background(), "a", "b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := m.MonitoredMarkets(); len(got) != 2 {
		t.Fatalf("monitored = %v, want 2 markets", got)
	}
	if err := m.RemoveMarkets(context.Background(), "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := m.MonitoredMarkets(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("monitored = %v, want [b]", got)
	}
}

func TestWhaleTradeReachesCallbackWithTitle(t *testing.T) {
	stream := newFakeStream()
	m := newTestMonitor(stream, staticTitles{"tok": "Will it rain tomorrow?"})

	got := make(chan *models.Alert, 4)
	m.RegisterAlertCallback(func(a *models.Alert) { got <- a })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	stream.events <- &models.Trade{
		AssetID:   "tok",
		Timestamp: time.Now(),
		Price:     0.50,
		Size:      20000,
		Side:      "BUY",
	}

	select {
	case a := <-got:
		if a.Type != models.AlertWhaleTrade {
			t.Fatalf("alert type = %s, want whale_trade", a.Type)
		}
		if a.Question != "Will it rain tomorrow?" {
			t.Fatalf("question = %q, not enriched", a.Question)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}

	recent := m.RecentAlerts(10)
	if len(recent) != 1 || recent[0].Type != models.AlertWhaleTrade {
		t.Fatalf("recent = %v", recent)
	}
}

func TestUnregisteredCallbackIsNotInvoked(t *testing.T) {
	stream := newFakeStream()
	m := newTestMonitor(stream, nil)

	var kept, removed int
	m.RegisterAlertCallback(func(*models.Alert) { kept++ })
	id := m.RegisterAlertCallback(func(*models.Alert) { removed++ })
	m.UnregisterAlertCallback(id)

	m.deliver(&models.Alert{AssetID: "tok", Type: models.AlertWhaleTrade, Timestamp: time.Now()})

	if kept != 1 {
		t.Fatalf("kept callback fired %d times, want 1", kept)
	}
	if removed != 0 {
		t.Fatalf("removed callback fired %d times", removed)
	}
}

func TestRecentAlertsNewestFirstAndBounded(t *testing.T) {
	stream := newFakeStream()
	m := newTestMonitor(stream, nil)
	m.cfg.RecentAlerts = 2

	for _, asset := range []string{"a", "b", "c"} {
		m.deliver(&models.Alert{AssetID: asset, Type: models.AlertFlashMove, Timestamp: time.Now()})
	}

	recent := m.RecentAlerts(10)
	if len(recent) != 2 {
		t.Fatalf("recent = %d alerts, want 2", len(recent))
	}
	if recent[0].AssetID != "c" || recent[1].AssetID != "b" {
		t.Fatalf("recent order = [%s %s], want [c b]", recent[0].AssetID, recent[1].AssetID)
	}

	if got := m.RecentAlerts(1); len(got) != 1 || got[0].AssetID != "c" {
		t.Fatalf("limited recent = %v, want [c]", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	stream := newFakeStream()
	m := newTestMonitor(stream, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("stream not connected after start")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if stream.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", stream.disconnects)
	}
}

func TestDispatchRunsDespiteConnectFailure(t *testing.T) {
	stream := newFakeStream()
	stream.connectErr = errors.New("venue down")
	m := newTestMonitor(stream, nil)

	got := make(chan *models.Alert, 4)
	m.RegisterAlertCallback(func(a *models.Alert) { got <- a })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	// Events must still flow once the transport recovers on its own.
	stream.events <- &models.Trade{
		AssetID:   "tok",
		Timestamp: time.Now(),
		Price:     0.50,
		Size:      20000,
		Side:      "BUY",
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop not running after failed connect")
	}
}
