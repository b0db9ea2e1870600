package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/rickgao/coinboard/internal/catalog"
	"github.com/rickgao/coinboard/internal/highlight"
	"github.com/rickgao/coinboard/internal/merge"
	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/model"
	"github.com/rickgao/coinboard/internal/poller"
)

var (
	// ErrStopped is returned by commands issued after Stop.
	ErrStopped = errors.New("session stopped")

	// ErrEmptyCode is returned by OnSelect for a blank instrument code.
	ErrEmptyCode = errors.New("instrument code is required")
)

// AccountProvider resolves the user's holding of an instrument.
type AccountProvider interface {
	Holding(ctx context.Context, code string) (*model.Holding, error)
}

// BoardSink receives every published board.
type BoardSink interface {
	Name() string
	PublishBoard(ctx context.Context, board model.Board) error
}

// Config holds session configuration.
type Config struct {
	DefaultSort    string
	Catalog        catalog.Config
	Poller         poller.Config
	Highlight      highlight.Config
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSort:    "",
		Catalog:        catalog.DefaultConfig(),
		Poller:         poller.DefaultConfig(),
		Highlight:      highlight.DefaultConfig(),
		PublishTimeout: 2 * time.Second,
	}
}

// Deps are the session's upstream collaborators.
type Deps struct {
	Catalog catalog.Fetcher        // Required
	Ticker  poller.SnapshotFetcher // Required
	Account AccountProvider        // Optional; selections carry no holding without it
	Sinks   []BoardSink
	Clock   clock.Clock // Defaults to the wall clock
}

// Session owns the board state of one user.
type Session struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	clock   clock.Clock
	account AccountProvider

	store   *catalog.Store
	poller  *poller.Poller
	tracker *highlight.Tracker

	sinksMu sync.RWMutex
	sinks   []BoardSink

	mu       sync.Mutex
	selected model.Selection
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session. Nothing runs until Start.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Session, error) {
	if deps.Catalog == nil {
		return nil, errors.New("session: catalog fetcher is required")
	}
	if deps.Ticker == nil {
		return nil, errors.New("session: ticker fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	id := uuid.NewString()
	logger = logger.With("session", id)

	s := &Session{
		id:      id,
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		account: deps.Account,
		sinks:   append([]BoardSink(nil), deps.Sinks...),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.store = catalog.NewStore(cfg.Catalog, deps.Catalog, logger.With("component", "catalog"), catalog.WithClock(clk))
	s.tracker = highlight.New(cfg.Highlight, logger.With("component", "highlight"), highlight.WithClock(clk))
	s.poller = poller.New(cfg.Poller, deps.Ticker, s.store, s, logger.With("component", "poller"), poller.WithClock(clk))

	s.store.OnChange(s.onCatalogChange)
	s.tracker.OnTransition(s.onTransition)

	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// AddSink registers another board sink.
func (s *Session) AddSink(sink BoardSink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Start starts polling and requests the default sort key. A failed initial
// catalog fetch is logged, not returned; the board stays empty until a
// later request succeeds.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.poller.Start(s.ctx); err != nil {
		return err
	}

	s.logger.Info("session started", "default_sort", s.cfg.DefaultSort)

	if err := s.store.Request(ctx, s.cfg.DefaultSort); err != nil {
		s.logger.Warn("initial catalog request failed", "sort", s.cfg.DefaultSort, "err", err)
	}
	return nil
}

// Stop tears the session down: polling stops, in-flight fetches are
// discarded and all flash timers are cancelled. Later calls are no-ops.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	// Every component is closed before anything is awaited, so a response
	// landing while another component drains is already discarded.
	s.store.Shutdown()
	s.poller.Halt()
	s.tracker.Close()
	s.mu.Unlock()

	s.cancel()

	var errs []error
	if err := s.poller.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	s.logger.Info("session stopped")
	return errors.Join(errs...)
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// OnSortChange switches the board to another sort key.
func (s *Session) OnSortChange(ctx context.Context, sortKey string) error {
	if s.Stopped() {
		return ErrStopped
	}
	return s.store.Request(ctx, sortKey)
}

// OnSelect records the user's selected instrument and resolves their
// holding of it when an account provider is wired. An account failure is
// logged and yields a selection without holding.
func (s *Session) OnSelect(ctx context.Context, code string) (model.Selection, error) {
	if s.Stopped() {
		return model.Selection{}, ErrStopped
	}
	if code == "" {
		return model.Selection{}, ErrEmptyCode
	}

	sel := model.Selection{Code: code}
	if s.account != nil {
		holding, err := s.account.Holding(ctx, code)
		if err != nil {
			s.logger.Warn("holding lookup failed", "code", code, "err", err)
		} else {
			sel.Holding = holding
		}
	}

	s.mu.Lock()
	s.selected = sel
	s.mu.Unlock()

	s.logger.Debug("instrument selected", "code", code, "held", sel.Holding != nil)
	s.publish()
	return sel, nil
}

// Selection returns the current selection.
func (s *Session) Selection() model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Invalidate drops the cached list for sortKey.
func (s *Session) Invalidate(sortKey string) bool {
	return s.store.Invalidate(sortKey)
}

// InvalidateAll drops every cached list.
func (s *Session) InvalidateAll() int {
	return s.store.InvalidateAll()
}

// Board merges the active catalog with the current snapshot and annotates
// it with highlight state.
func (s *Session) Board() model.Board {
	instruments := s.store.Active()
	snapshot := s.poller.Snapshot()

	records, errs := merge.MergeReport(instruments, snapshot)
	for _, err := range errs {
		s.logger.Debug("record degraded", "err", err)
	}
	s.tracker.Annotate(records)

	return model.Board{
		SessionID:   s.id,
		SortKey:     s.store.ActiveKey(),
		Selected:    s.Selection().Code,
		Records:     records,
		SnapshotAt:  snapshot.FetchedAt,
		Stale:       s.stale(),
		GeneratedAt: s.clock.Now(),
	}
}

func (s *Session) stale() bool {
	if s.poller.Staleness() != nil {
		return true
	}
	return s.poller.Stats().ConsecutiveFailures > 0
}

// HandleSnapshot implements poller.SnapshotHandler. Every displayed
// instrument's price is fed to the tracker before the board is published.
func (s *Session) HandleSnapshot(snapshot model.TickerSnapshot) error {
	if s.Stopped() {
		return nil
	}
	for _, inst := range s.store.Active() {
		entry, ok := snapshot.Lookup(inst.Code)
		if !ok {
			continue
		}
		s.tracker.Observe(inst.Code, entry.ClosingPrice)
	}
	s.publish()
	return nil
}

func (s *Session) onCatalogChange(sortKey string, instruments []model.Instrument) {
	codes := make([]string, len(instruments))
	for i, inst := range instruments {
		codes[i] = inst.Code
	}
	s.tracker.Retain(codes)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if len(instruments) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.poller.Refresh(s.ctx); err != nil && !errors.Is(err, poller.ErrStopped) {
				s.logger.Debug("refresh after catalog change failed", "err", err)
			}
		}()
	}
	s.mu.Unlock()

	s.logger.Debug("catalog changed", "sort", sortKey, "instruments", len(instruments))
	s.publish()
}

func (s *Session) onTransition(code string, state model.HighlightState) {
	// Flash starts are published with the snapshot that caused them.
	if state.Active() {
		return
	}
	s.publish()
}

// publish pushes the current board to every sink.
func (s *Session) publish() {
	if s.Stopped() {
		return
	}

	s.sinksMu.RLock()
	sinks := append([]BoardSink(nil), s.sinks...)
	s.sinksMu.RUnlock()
	if len(sinks) == 0 {
		return
	}

	board := s.Board()
	for _, sink := range sinks {
		ctx := s.ctx
		var cancel context.CancelFunc = func() {}
		if s.cfg.PublishTimeout > 0 {
			ctx, cancel = context.WithTimeout(s.ctx, s.cfg.PublishTimeout)
		}
		err := sink.PublishBoard(ctx, board)
		cancel()

		if err != nil {
			metrics.BoardsPublished.WithLabelValues(sink.Name(), metrics.ResultError).Inc()
			s.logger.Warn("board publish failed", "sink", sink.Name(), "err", err)
			continue
		}
		metrics.BoardsPublished.WithLabelValues(sink.Name(), metrics.ResultOK).Inc()
	}
}
