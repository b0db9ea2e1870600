package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"

	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/model"
)

// ErrStopped is returned for polls attempted or completed after Stop.
var ErrStopped = errors.New("poller stopped")

// SnapshotFetcher fetches one full ticker snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (model.TickerSnapshot, error)
}

// InstrumentSource reports how many instruments are on display.
// Polling pauses while it reports zero.
type InstrumentSource interface {
	Len() int
}

// SnapshotHandler receives every successfully fetched snapshot.
type SnapshotHandler interface {
	HandleSnapshot(snapshot model.TickerSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(model.TickerSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s model.TickerSnapshot) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval  time.Duration // Poll interval (default: 3s)
	FreshFor  time.Duration // Refresh is a no-op while the snapshot is younger (default: 3s)
	Retention time.Duration // Last good snapshot is served for this long (default: 5m)
	Timeout   time.Duration // Per-request timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  3 * time.Second,
		FreshFor:  3 * time.Second,
		Retention: 5 * time.Minute,
		Timeout:   5 * time.Second,
	}
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock driving the poll ticker and snapshot ages.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// outcome is one entry of the poll history.
type outcome struct {
	at time.Time
	ok bool
}

// Poller periodically fetches ticker snapshots.
type Poller struct {
	cfg     Config
	fetcher SnapshotFetcher
	source  InstrumentSource
	handler SnapshotHandler
	logger  *slog.Logger
	clock   clock.Clock

	pollMu sync.Mutex // Serializes fetches

	mu          sync.Mutex
	snapshot    model.TickerSnapshot
	lastSuccess time.Time
	lastAttempt time.Time
	lastErr     error
	failures    int
	history     deque.Deque[outcome]
	staleWarned bool
	started     bool
	stopped     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, fetcher SnapshotFetcher, source InstrumentSource, handler SnapshotHandler, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		source:  source,
		handler: handler,
		logger:  logger,
		clock:   clock.New(),
		history: deque.Deque[outcome]{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start begins the polling loop. The loop ends on Stop or when ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("ticker poller started",
		"interval", p.cfg.Interval,
		"fresh_for", p.cfg.FreshFor,
		"retention", p.cfg.Retention,
	)

	return nil
}

// Halt marks the poller stopped and cancels the loop and any in-flight
// request without waiting. Responses arriving afterwards are discarded.
func (p *Poller) Halt() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
}

// Stop gracefully shuts down the poller. Responses arriving afterwards are discarded.
func (p *Poller) Stop(ctx context.Context) error {
	p.Halt()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("ticker poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := p.clock.Ticker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.tick()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick polls unless there is nothing on display.
func (p *Poller) tick() {
	if p.source != nil && p.source.Len() == 0 {
		metrics.TickerSkippedPolls.Inc()
		p.logger.Debug("no instruments on display, skipping poll")
		return
	}
	_ = p.poll(p.ctx, false)
}

// Refresh polls now unless the last good snapshot is still fresh or the
// catalog is empty. Safe to call concurrently with the loop.
func (p *Poller) Refresh(ctx context.Context) error {
	if p.source != nil && p.source.Len() == 0 {
		return nil
	}
	if p.Fresh() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	return p.poll(ctx, true)
}

// Fresh reports whether the last good snapshot is younger than FreshFor.
func (p *Poller) Fresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.lastSuccess.IsZero() && p.clock.Since(p.lastSuccess) < p.cfg.FreshFor
}

// poll fetches one snapshot and hands it to the handler. With skipIfFresh
// a poll that completed while waiting for pollMu satisfies the call.
func (p *Poller) poll(ctx context.Context, skipIfFresh bool) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if p.isStopped() {
		return ErrStopped
	}
	if skipIfFresh && p.Fresh() {
		return nil
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	snapshot, err := p.fetcher.FetchSnapshot(ctx)
	now := p.clock.Now()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.logger.Debug("discarding ticker response after stop")
		return ErrStopped
	}

	p.lastAttempt = now
	p.recordLocked(outcome{at: now, ok: err == nil})

	if err != nil {
		p.lastErr = err
		p.failures++
		failures := p.failures
		p.mu.Unlock()

		metrics.TickerPolls.WithLabelValues(metrics.ResultError).Inc()
		p.logger.Warn("ticker poll failed, keeping last snapshot",
			"consecutive_failures", failures,
			"err", err,
		)
		return err
	}

	snapshot.FetchedAt = now
	p.snapshot = snapshot
	p.lastSuccess = now
	p.lastErr = nil
	p.failures = 0
	p.staleWarned = false
	p.mu.Unlock()

	metrics.TickerPolls.WithLabelValues(metrics.ResultOK).Inc()
	metrics.TickerSnapshotSize.Set(float64(snapshot.Len()))
	p.logger.Debug("ticker polled", "instruments", snapshot.Len())

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(snapshot); err != nil {
			p.logger.Warn("snapshot handler failed", "err", err)
		}
	}

	return nil
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// recordLocked appends an outcome and trims entries outside the retention window.
func (p *Poller) recordLocked(o outcome) {
	p.history.PushBack(o)
	if p.cfg.Retention <= 0 {
		for p.history.Len() > 1 {
			p.history.PopFront()
		}
		return
	}
	cutoff := o.at.Add(-p.cfg.Retention)
	for p.history.Len() > 0 && p.history.Front().at.Before(cutoff) {
		p.history.PopFront()
	}
}

// Snapshot returns the last good snapshot, or an empty one if it is older
// than the retention window. Callers must not modify the returned entries.
func (p *Poller) Snapshot() model.TickerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastSuccess.IsZero() {
		return model.TickerSnapshot{}
	}

	if w := p.staleLocked(); w != nil {
		if !p.staleWarned {
			p.staleWarned = true
			p.logger.Warn("serving empty snapshot", "warning", w.Error())
		}
		return model.TickerSnapshot{}
	}

	return p.snapshot
}

// Staleness returns a *StaleDataWarning once the last good snapshot has
// outlived the retention window, nil otherwise.
func (p *Poller) Staleness() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w := p.staleLocked(); w != nil {
		return w
	}
	return nil
}

func (p *Poller) staleLocked() *StaleDataWarning {
	if p.lastSuccess.IsZero() || p.cfg.Retention <= 0 {
		return nil
	}
	age := p.clock.Since(p.lastSuccess)
	if age <= p.cfg.Retention {
		return nil
	}
	return &StaleDataWarning{Age: age, Limit: p.cfg.Retention}
}

// Stats returns a point-in-time view of poll health.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		LastSuccess:         p.lastSuccess,
		LastAttempt:         p.lastAttempt,
		ConsecutiveFailures: p.failures,
		Instruments:         p.snapshot.Len(),
		Running:             p.started && !p.stopped,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}

	cutoff := p.clock.Now().Add(-p.cfg.Retention)
	for i := 0; i < p.history.Len(); i++ {
		o := p.history.At(i)
		if p.cfg.Retention > 0 && o.at.Before(cutoff) {
			continue
		}
		s.WindowPolls++
		if !o.ok {
			s.WindowFailures++
		}
	}
	return s
}
