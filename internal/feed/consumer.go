package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// FeedSource fetches the next envelope from an upstream feed, long-polling
// for up to ttw seconds. Satisfied in production by HTTPSource (a
// RedisQ-shaped endpoint) and by a fixture source in tests.
type FeedSource interface {
	Poll(ctx context.Context, ttwSeconds int) (*Envelope, error)
}

// State mirrors the teacher's ServiceState enum for the consumer's
// lifecycle, surfaced for health/status reporting.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateThrottled
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateThrottled:
		return "throttled"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Sink receives every package the consumer pulls off the feed; the
// consumer itself does no dedup. Implemented by internal/killmail/ingest,
// which persists (deduplicating on killmailId) and publishes.
type Sink interface {
	Accept(ctx context.Context, pkg *Package) error
}

// Metrics tracks consumer performance counters, read via Snapshot for
// status reporting.
type Metrics struct {
	TotalPolls     atomic.Int64
	NullResponses  atomic.Int64
	KillmailsFound atomic.Int64
	HTTPErrors     atomic.Int64
	ParseErrors    atomic.Int64
	SinkErrors     atomic.Int64
}

// Consumer long-polls a FeedSource and dispatches each non-null package to
// a Sink, using an adaptive time-to-wait: minimal TTW while killmails are
// arriving, maximal TTW once nullThreshold consecutive empty polls have
// been seen. Grounded on RedisQConsumer's pollLoop/calculateTTW shape.
type Consumer struct {
	source FeedSource
	sink   Sink

	ttwMin        int
	ttwMax        int
	nullThreshold int

	state atomic.Int32
	mu    sync.Mutex

	nullStreak int
	lastPoll   time.Time
	startedAt  time.Time

	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(source FeedSource, sink Sink, ttwMin, ttwMax, nullThreshold int) *Consumer {
	c := &Consumer{source: source, sink: sink, ttwMin: ttwMin, ttwMax: ttwMax, nullThreshold: nullThreshold}
	c.state.Store(int32(StateStopped))
	return c
}

// Start begins the poll loop in a background goroutine. Returns an error
// if already running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != StateStopped {
		return fmt.Errorf("feed consumer already running")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.nullStreak = 0
	c.startedAt = time.Now()
	c.state.Store(int32(StateStarting))

	c.wg.Add(1)
	go c.pollLoop()

	c.state.Store(int32(StateRunning))
	slog.InfoContext(ctx, "feed consumer started")
	return nil
}

// Stop cancels the poll loop and waits for it to exit, up to 30s.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if State(c.state.Load()) == StateStopped {
		c.mu.Unlock()
		return fmt.Errorf("feed consumer not running")
	}
	c.state.Store(int32(StateDraining))
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.Warn("feed consumer stop timed out")
	}

	c.state.Store(int32(StateStopped))
	return nil
}

func (c *Consumer) pollLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.poll()
		}
	}
}

func (c *Consumer) poll() {
	ttw := c.currentTTW()

	c.metrics.TotalPolls.Add(1)
	c.mu.Lock()
	c.lastPoll = time.Now()
	c.mu.Unlock()

	envelope, err := c.source.Poll(c.ctx, ttw)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		slog.ErrorContext(c.ctx, "feed poll failed", "error", err)
		c.metrics.HTTPErrors.Add(1)
		time.Sleep(5 * time.Second)
		return
	}

	if envelope.Package == nil {
		c.metrics.NullResponses.Add(1)
		c.mu.Lock()
		c.nullStreak++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.nullStreak = 0
	c.mu.Unlock()

	c.metrics.KillmailsFound.Add(1)
	if err := c.sink.Accept(c.ctx, envelope.Package); err != nil {
		slog.ErrorContext(c.ctx, "feed sink rejected package", "error", err, "killmail_id", envelope.Package.KillID)
		c.metrics.SinkErrors.Add(1)
	}
}

func (c *Consumer) currentTTW() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nullStreak >= c.nullThreshold {
		return c.ttwMax
	}
	return c.ttwMin
}

// Snapshot reports the current state for health/status endpoints.
type Snapshot struct {
	State          string
	LastPoll       time.Time
	Uptime         time.Duration
	TotalPolls     int64
	NullResponses  int64
	KillmailsFound int64
	HTTPErrors     int64
	SinkErrors     int64
}

func (c *Consumer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var uptime time.Duration
	if !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt)
	}

	return Snapshot{
		State:          State(c.state.Load()).String(),
		LastPoll:       c.lastPoll,
		Uptime:         uptime,
		TotalPolls:     c.metrics.TotalPolls.Load(),
		NullResponses:  c.metrics.NullResponses.Load(),
		KillmailsFound: c.metrics.KillmailsFound.Load(),
		HTTPErrors:     c.metrics.HTTPErrors.Load(),
		SinkErrors:     c.metrics.SinkErrors.Load(),
	}
}

// HTTPSource polls a RedisQ-shaped HTTP endpoint.
type HTTPSource struct {
	client    *http.Client
	endpoint  string
	queueID   string
	userAgent string
}

func NewHTTPSource(client *http.Client, endpoint, queueID string) *HTTPSource {
	return &HTTPSource{client: client, endpoint: endpoint, queueID: queueID, userAgent: "battlescope/1.0"}
}

func (h *HTTPSource) Poll(ctx context.Context, ttwSeconds int) (*Envelope, error) {
	url := fmt.Sprintf("%s?queueID=%s&ttw=%d", h.endpoint, h.queueID, ttwSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed responded %d", resp.StatusCode)
	}

	var envelope Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode feed envelope: %w", err)
	}
	return &envelope, nil
}
