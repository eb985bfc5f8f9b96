package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PolyPulse/internal/domain/models"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordEvent(string, string)      {}
func (m *countingMetrics) RecordAlert(string)              {}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}
func (m *countingMetrics) RecordReconnect()                {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type captureProc struct {
	mu    sync.Mutex
	fail  int // number of Process calls to fail before succeeding
	seen  []*models.Alert
	seenC chan *models.Alert
}

func newCaptureProc() *captureProc {
	return &captureProc{seenC: make(chan *models.Alert, 16)}
}

func (p *captureProc) Process(_ context.Context, a *models.Alert) error {
	p.mu.Lock()
	if p.fail > 0 {
		p.fail--
		p.mu.Unlock()
		return errors.New("backend down")
	}
	p.seen = append(p.seen, a)
	p.mu.Unlock()
	p.seenC <- a
	return nil
}

func validAlert(asset string) *models.Alert {
	return &models.Alert{
		AssetID:   asset,
		Type:      models.AlertWhaleTrade,
		Timestamp: time.Now(),
	}
}

func TestEnqueueRejectsInvalidAlerts(t *testing.T) {
	metrics := newCountingMetrics()
	p := NewAlertPipeline(newCaptureProc(), metrics)

	bad := []*models.Alert{
		nil,
		{Type: models.AlertWhaleTrade, Timestamp: time.Now()},
		{AssetID: "tok", Timestamp: time.Now()},
		{AssetID: "tok", Type: models.AlertWhaleTrade},
	}
	for i, a := range bad {
		if p.Enqueue(a) {
			t.Fatalf("invalid alert %d accepted", i)
		}
	}
	if got := metrics.errorCount("pipeline_validate"); got != len(bad) {
		t.Fatalf("validate errors = %d, want %d", got, len(bad))
	}
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	metrics := newCountingMetrics()
	p := NewAlertPipeline(newCaptureProc(), metrics, WithBufferSize(1))

	if !p.Enqueue(validAlert("a")) {
		t.Fatal("first enqueue rejected")
	}
	if p.Enqueue(validAlert("b")) {
		t.Fatal("enqueue accepted past buffer capacity")
	}
	if got := metrics.errorCount("pipeline_buffer_full"); got != 1 {
		t.Fatalf("buffer_full errors = %d, want 1", got)
	}
}

func TestPipelineFlushesToProcessor(t *testing.T) {
	metrics := newCountingMetrics()
	proc := newCaptureProc()
	p := NewAlertPipeline(proc, metrics)
	p.Start(context.Background())
	defer p.Stop()

	if !p.Enqueue(validAlert("tok")) {
		t.Fatal("enqueue rejected")
	}

	select {
	case a := <-proc.seenC:
		if a.AssetID != "tok" {
			t.Fatalf("flushed asset = %s", a.AssetID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never flushed")
	}
}

func TestPipelineRetriesAfterFlushFailure(t *testing.T) {
	metrics := newCountingMetrics()
	proc := newCaptureProc()
	proc.fail = 2
	p := NewAlertPipeline(proc, metrics)
	p.Start(context.Background())
	defer p.Stop()

	p.Enqueue(validAlert("tok"))

	select {
	case a := <-proc.seenC:
		if a.AssetID != "tok" {
			t.Fatalf("flushed asset = %s", a.AssetID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("alert never delivered after retries")
	}
	if metrics.errorCount("pipeline_flush") != 2 {
		t.Fatalf("flush errors = %d, want 2", metrics.errorCount("pipeline_flush"))
	}
}

func TestTransformHookApplied(t *testing.T) {
	metrics := newCountingMetrics()
	proc := newCaptureProc()
	p := NewAlertPipeline(proc, metrics, WithTransform(func(a *models.Alert) *models.Alert {
		a.Reasoning = "annotated"
		return a
	}))
	p.Start(context.Background())
	defer p.Stop()

	p.Enqueue(validAlert("tok"))

	select {
	case a := <-proc.seenC:
		if a.Reasoning != "annotated" {
			t.Fatalf("reasoning = %q, transform not applied", a.Reasoning)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never flushed")
	}
}

func TestTransformRejectionDropsAlert(t *testing.T) {
	metrics := newCountingMetrics()
	proc := newCaptureProc()
	p := NewAlertPipeline(proc, metrics, WithTransform(func(a *models.Alert) *models.Alert {
		return &models.Alert{} // invalid after transform
	}))
	p.Start(context.Background())
	defer p.Stop()

	p.Enqueue(validAlert("tok"))

	select {
	case a := <-proc.seenC:
		t.Fatalf("invalid transformed alert flushed: %+v", a)
	case <-time.After(300 * time.Millisecond):
	}
	if metrics.errorCount("pipeline_transform_invalid") != 1 {
		t.Fatalf("transform errors = %d, want 1", metrics.errorCount("pipeline_transform_invalid"))
	}
}
