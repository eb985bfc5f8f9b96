package clob

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PolyPulse/internal/domain/models"
	"PolyPulse/internal/domain/repository"
	"PolyPulse/internal/service/ratelimit"
	applogger "PolyPulse/pkg/logger"
)

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config controls the stream client. Zero values fall back to defaults.
type Config struct {
	URL               string
	HandshakeTimeout  time.Duration // bound on the websocket dial
	HeartbeatInterval time.Duration // ping cadence while open
	ReconnectBase     time.Duration // backoff unit: min(attempt,5) × base
	MaxReconnects     int           // attempts before retries halt
	PriceChangePct    float64       // relative move that synthesizes a PriceChange
	EventBuffer       int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 10
	}
	if c.PriceChangePct <= 0 {
		c.PriceChangePct = 0.01
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 1024
	}
}

// Client maintains a resilient websocket link to the CLOB market channel.
// It tracks the subscription set locally, replays it after every reconnect,
// and synthesizes PriceChange events when an asset's observed price moves by
// the configured fraction.
type Client struct {
	cfg     Config
	log     *applogger.Logger
	metrics repository.Metrics
	limiter *ratelimit.Limiter

	mu            sync.Mutex
	state         ConnState
	conn          *websocket.Conn
	subs          map[string]struct{}
	attempts      int
	autoReconnect bool
	gen           int // bumped by Disconnect; abandons in-flight dials and timers
	reconnTimer   *time.Timer
	heartbeatStop chan struct{}

	writeMu sync.Mutex

	// lastPrice is touched only by the read pump; exactly one pump is live at
	// a time, so it needs no lock.
	lastPrice map[string]float64

	events chan models.MarketEvent
	errs   chan error
}

var _ repository.MarketStream = (*Client)(nil)

// New creates a stream client. The event channel survives reconnects.
func New(cfg Config, log *applogger.Logger, metrics repository.Metrics) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		limiter:   ratelimit.New(),
		subs:      make(map[string]struct{}),
		lastPrice: make(map[string]float64),
		events:    make(chan models.MarketEvent, cfg.EventBuffer),
		errs:      make(chan error, 8),
	}
}

// Events returns the single-consumer event channel. Arrival order is preserved.
func (c *Client) Events() <-chan models.MarketEvent { return c.events }

// Errors returns the transport error channel. Errors here are informational;
// recovery is handled internally by the reconnect loop.
func (c *Client) Errors() <-chan error { return c.errs }

// IsConnected reports whether the link is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed returns the locally tracked subscription set, sorted.
func (c *Client) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connect establishes the transport. It is idempotent: a no-op while already
// open or connecting. A fresh Connect re-arms auto-reconnect, resets the
// attempt counter, and cancels any pending retry, so it also restarts a client
// whose retries were exhausted or mid-backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.autoReconnect = true
	c.attempts = 0
	if c.reconnTimer != nil {
		// A caller-driven Connect supersedes any scheduled retry; a stale
		// timer firing after this dial would stand up a second transport.
		c.reconnTimer.Stop()
		c.reconnTimer = nil
	}
	gen := c.gen
	c.mu.Unlock()

	if err := c.dial(ctx, gen); err != nil {
		c.scheduleReconnect(gen, err)
		return err
	}
	return nil
}

// dial performs one bounded handshake attempt and, on success, installs the
// connection, replays subscriptions, and starts the pump and heartbeat.
func (c *Client) dial(ctx context.Context, gen int) error {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.cfg.URL, nil)

	c.mu.Lock()
	if gen != c.gen || !c.autoReconnect {
		// Disconnect won while we were dialing; abandon the attempt.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("clob dial %s: %w", c.cfg.URL, err)
	}

	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	if c.log != nil {
		c.log.Info("clob connected", applogger.String("url", c.cfg.URL))
	}

	go c.heartbeat(conn, stop)
	go c.readPump(conn, gen)

	if err := c.replaySubscriptions(conn); err != nil {
		c.pushErr(fmt.Errorf("replay subscriptions: %w", err))
	}
	return nil
}

// Disconnect disables auto-reconnect and tears down the transport, heartbeat,
// and any pending reconnect timer. Pending timers are cancelled synchronously;
// an in-flight dial notices the generation bump and abandons on completion.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.autoReconnect = false
	c.gen++
	c.state = StateIdle
	if c.reconnTimer != nil {
		c.reconnTimer.Stop()
		c.reconnTimer = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Subscribe sends control frames only for ids not already tracked. The full
// tracked set is replayed automatically after any reconnect.
func (c *Client) Subscribe(ctx context.Context, assetIDs ...string) error {
	c.mu.Lock()
	fresh := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if _, ok := c.subs[id]; ok {
			continue
		}
		c.subs[id] = struct{}{}
		fresh = append(fresh, id)
	}
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if len(fresh) == 0 || !open {
		return nil
	}
	return c.sendControl(ctx, conn, subscribeMsg{Type: "subscribe", AssetIDs: fresh})
}

// Unsubscribe drops ids from the tracked set and notifies the venue.
func (c *Client) Unsubscribe(ctx context.Context, assetIDs ...string) error {
	c.mu.Lock()
	tracked := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if _, ok := c.subs[id]; !ok {
			continue
		}
		delete(c.subs, id)
		tracked = append(tracked, id)
	}
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if len(tracked) == 0 || !open {
		return nil
	}
	return c.sendControl(ctx, conn, subscribeMsg{Type: "unsubscribe", AssetIDs: tracked})
}

// sendControl writes one control frame, paced by a token bucket so a burst of
// Subscribe calls cannot trip the venue's control-message limits.
func (c *Client) sendControl(ctx context.Context, conn *websocket.Conn, msg subscribeMsg) error {
	if conn == nil {
		return nil
	}
	for !c.limiter.Allow("control", 5, 2) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) replaySubscriptions(conn *websocket.Conn) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return c.sendControl(context.Background(), conn, subscribeMsg{Type: "subscribe", AssetIDs: ids})
}

func (c *Client) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// The read pump will observe the broken connection and
				// drive the reconnect; nothing more to do here.
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(gen, fmt.Errorf("clob read: %w", err))
			return
		}
		c.handleFrameData(data)
	}
}

// handleClosed reacts to an unexpected transport loss: surfaces the error and
// schedules the next reconnect attempt if allowed.
func (c *Client) handleClosed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.autoReconnect {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.pushErr(err)
	if c.metrics != nil {
		c.metrics.RecordError("stream_closed")
	}
	c.scheduleReconnect(gen, err)
}

// scheduleReconnect arms the backoff timer. Backoff grows linearly and caps at
// 5× the base delay; retries halt after MaxReconnects until the caller invokes
// Connect again.
func (c *Client) scheduleReconnect(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || !c.autoReconnect {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnects {
		c.state = StateClosed
		c.mu.Unlock()
		if c.log != nil {
			c.log.Error("clob reconnect attempts exhausted",
				applogger.Int("attempts", c.cfg.MaxReconnects), applogger.Error(cause))
		}
		c.pushErr(fmt.Errorf("reconnect attempts exhausted after %d tries: %w", c.cfg.MaxReconnects, cause))
		return
	}

	c.attempts++
	attempt := c.attempts
	factor := attempt
	if factor > 5 {
		factor = 5
	}
	delay := time.Duration(factor) * c.cfg.ReconnectBase
	c.state = StateReconnecting
	c.reconnTimer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	if c.log != nil {
		c.log.Warn("clob scheduling reconnect",
			applogger.Int("attempt", attempt),
			applogger.Duration("delay", delay),
			applogger.Error(cause))
	}
	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
}

func (c *Client) reconnect(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.autoReconnect || c.state == StateOpen || c.state == StateConnecting {
		// The link recovered (or a caller reconnected) while this retry was
		// queued; dialing again would duplicate the transport.
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.reconnTimer = nil
	c.mu.Unlock()

	if err := c.dial(context.Background(), gen); err != nil {
		c.scheduleReconnect(gen, err)
	}
}

// handleFrameData parses one inbound message. Malformed frames are logged and
// dropped; unknown event types are ignored. No error escapes this path.
func (c *Client) handleFrameData(data []byte) {
	now := time.Now()
	frames, err := decodeFrames(data)
	if err != nil {
		c.dropFrame(err)
		return
	}
	for i := range frames {
		f := &frames[i]
		switch f.EventType {
		case frameBook:
			book, err := f.toBook(now)
			if err != nil {
				c.dropFrame(err)
				continue
			}
			c.pushEvent(book, "book")
			if mid := book.MidPrice(); mid > 0 {
				c.observePrice(book.AssetID, mid, book.Timestamp)
			}
		case frameTrade:
			trade, err := f.toTrade(now)
			if err != nil {
				c.dropFrame(err)
				continue
			}
			c.pushEvent(trade, "trade")
			if trade.Price > 0 {
				c.observePrice(trade.AssetID, trade.Price, trade.Timestamp)
			}
		case framePriceChg, frameTickSize, frameHeartbeat, "":
			// Level deltas, tick-size notices, and acks carry nothing the
			// detectors need beyond what book and trade frames provide.
		default:
			// Unknown shapes are tolerated without failure.
		}
	}
}

// observePrice compares the new price to the last observed one and, past the
// threshold, synthesizes a PriceChange alongside the raw event. This is the
// sole coupling between raw transport and the anomaly layer.
func (c *Client) observePrice(assetID string, price float64, ts time.Time) {
	old, seen := c.lastPrice[assetID]
	c.lastPrice[assetID] = price
	if !seen || old == 0 {
		return
	}
	move := (price - old) / old
	if move < 0 {
		move = -move
	}
	if move < c.cfg.PriceChangePct {
		return
	}
	c.pushEvent(&models.PriceChange{
		AssetID:   assetID,
		Timestamp: ts,
		OldPrice:  old,
		NewPrice:  price,
	}, "price_change")
}

func (c *Client) pushEvent(ev models.MarketEvent, kind string) {
	if c.metrics != nil {
		c.metrics.RecordEvent(kind, ev.Asset())
	}
	select {
	case c.events <- ev:
	default:
		// The consumer is behind; inbound flow control is out of scope, so
		// the oldest-unread policy is simply to drop the new event.
		if c.metrics != nil {
			c.metrics.RecordError("event_buffer_full")
		}
	}
}

func (c *Client) dropFrame(err error) {
	if c.log != nil {
		c.log.Warn("dropping malformed frame", applogger.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordError("malformed_frame")
	}
}

func (c *Client) pushErr(err error) {
	select {
	case c.errs <- err:
	default:
	}
}
