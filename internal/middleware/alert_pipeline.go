package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PolyPulse/internal/domain/models"
	domrepo "PolyPulse/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, a *models.Alert) error
}

// AlertPipeline sits between the detection loop and the alert backend. The
// event loop hands alerts off with a non-blocking Enqueue; a background worker
// validates and flushes them, retrying with backoff when downstream is down.
// A full buffer drops the newest alert rather than stalling detection.
type AlertPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.Alert
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// optional transform hook applied before routing
	transform func(*models.Alert) *models.Alert
}

type PipelineOption func(*AlertPipeline)

// WithBufferSize sets the handoff buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *AlertPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook to modify alerts before routing.
func WithTransform(fn func(*models.Alert) *models.Alert) PipelineOption {
	return func(p *AlertPipeline) { p.transform = fn }
}

// NewAlertPipeline creates a pipeline.
func NewAlertPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *AlertPipeline {
	p := &AlertPipeline{
		proc:    proc,
		metrics: metrics,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Alert, p.bufSize)
	return p
}

// Enqueue hands an alert to the pipeline without blocking. Returns false when
// the buffer is full and the alert was dropped.
func (p *AlertPipeline) Enqueue(a *models.Alert) bool {
	if err := validateAlert(a); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return false
	}
	select {
	case p.bufCh <- a:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		return true
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return false
	}
}

// Start launches the background flush worker.
func (p *AlertPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case a := <-p.bufCh:
				if a == nil {
					continue
				}
				if p.transform != nil {
					a = p.transform(a)
					if err := validateAlert(a); err != nil {
						p.metrics.RecordError("pipeline_transform_invalid")
						continue
					}
				}
				if err := p.proc.Process(ctx, a); err != nil {
					// exponential backoff with cap, then requeue if space
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- a:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the flush worker. Buffered alerts are abandoned; the core makes
// no delivery guarantee across shutdown.
func (p *AlertPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

func validateAlert(a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert nil")
	}
	if a.AssetID == "" {
		return fmt.Errorf("asset id empty")
	}
	if a.Type == "" {
		return fmt.Errorf("alert type empty")
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("timestamp missing")
	}
	return nil
}
