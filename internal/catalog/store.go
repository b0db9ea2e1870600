package catalog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/model"
)

// ErrClosed is returned by Request after Close.
var ErrClosed = errors.New("catalog store closed")

// Fetcher loads the ordered instrument list for a sort key.
type Fetcher interface {
	FetchInstruments(ctx context.Context, sortKey string) ([]model.Instrument, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, sortKey string) ([]model.Instrument, error)

// FetchInstruments calls f.
func (f FetcherFunc) FetchInstruments(ctx context.Context, sortKey string) ([]model.Instrument, error) {
	return f(ctx, sortKey)
}

// Config holds catalog store configuration.
type Config struct {
	CacheTTL     time.Duration // 0 keeps entries until invalidated
	FetchTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     0,
		FetchTimeout: 10 * time.Second,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for cache timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// call is one in-flight fetch shared by every requester of its key.
type call struct {
	done chan struct{}
	err  error
}

// Store holds the active instrument list and the per-key cache.
type Store struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger
	clock   clock.Clock

	mu        sync.Mutex
	active    []model.Instrument
	activeKey string
	requested string
	cache     map[string]model.CacheEntry
	inflight  map[string]*call
	closed    bool
	onChange  func(key string, instruments []model.Instrument)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore creates a catalog store backed by fetcher.
func NewStore(cfg Config, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		cfg:      cfg,
		fetcher:  fetcher,
		logger:   logger,
		clock:    clock.New(),
		cache:    make(map[string]model.CacheEntry),
		inflight: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// OnChange registers a callback invoked after every active-list swap.
// The callback runs without the store lock held and receives a copy.
func (s *Store) OnChange(fn func(key string, instruments []model.Instrument)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Request makes sortKey the requested key. A cached key is adopted
// immediately; otherwise Request waits for the (possibly shared) fetch or ctx.
// A failed fetch leaves the previous active list in place and returns the error.
func (s *Store) Request(ctx context.Context, sortKey string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.requested = sortKey

	if entry, ok := s.lookupLocked(sortKey); ok {
		s.adoptLocked(sortKey, entry.Instruments)
		notify := s.changeNotifierLocked()
		s.mu.Unlock()

		metrics.CatalogCacheHits.WithLabelValues(sortLabel(sortKey)).Inc()
		s.logger.Debug("catalog cache hit", "sort", sortKey, "count", len(entry.Instruments))
		notify()
		return nil
	}

	c, ok := s.inflight[sortKey]
	if !ok {
		c = &call{done: make(chan struct{})}
		s.inflight[sortKey] = c
		s.wg.Add(1)
		go s.fetch(sortKey, c)
	}
	s.mu.Unlock()

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetch runs one network fetch and publishes its result.
func (s *Store) fetch(sortKey string, c *call) {
	defer s.wg.Done()
	defer close(c.done)

	ctx := s.ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	instruments, err := s.fetcher.FetchInstruments(ctx, sortKey)
	metrics.CatalogFetchDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	delete(s.inflight, sortKey)

	if s.closed {
		s.mu.Unlock()
		c.err = ErrClosed
		s.logger.Debug("discarding catalog response after close", "sort", sortKey)
		return
	}

	if err != nil {
		s.mu.Unlock()
		c.err = err
		metrics.CatalogFetches.WithLabelValues(sortLabel(sortKey), metrics.ResultError).Inc()
		s.logger.Warn("catalog fetch failed, keeping previous list",
			"sort", sortKey,
			"err", err,
		)
		return
	}

	for i := range instruments {
		instruments[i].RSI = NormalizeRSI(instruments[i].RSI)
	}

	s.cache[sortKey] = model.CacheEntry{
		SortKey:     sortKey,
		Instruments: instruments,
		FetchedAt:   s.clock.Now(),
	}

	notify := func() {}
	if s.requested == sortKey {
		s.adoptLocked(sortKey, instruments)
		notify = s.changeNotifierLocked()
	} else {
		s.logger.Debug("catalog response cached but superseded",
			"sort", sortKey,
			"requested", s.requested,
		)
	}
	s.mu.Unlock()

	metrics.CatalogFetches.WithLabelValues(sortLabel(sortKey), metrics.ResultOK).Inc()
	s.logger.Info("catalog fetched", "sort", sortKey, "count", len(instruments))
	notify()
}

func (s *Store) lookupLocked(sortKey string) (model.CacheEntry, bool) {
	entry, ok := s.cache[sortKey]
	if !ok {
		return model.CacheEntry{}, false
	}
	if s.cfg.CacheTTL > 0 && s.clock.Since(entry.FetchedAt) >= s.cfg.CacheTTL {
		delete(s.cache, sortKey)
		return model.CacheEntry{}, false
	}
	return entry, true
}

// adoptLocked swaps the active list. Cached slices are never handed out, so
// the swap is a single pointer assignment under the lock.
func (s *Store) adoptLocked(sortKey string, instruments []model.Instrument) {
	s.active = instruments
	s.activeKey = sortKey
	metrics.CatalogInstruments.Set(float64(len(instruments)))
}

func (s *Store) changeNotifierLocked() func() {
	fn := s.onChange
	if fn == nil {
		return func() {}
	}
	key := s.activeKey
	list := model.CloneInstruments(s.active)
	return func() { fn(key, list) }
}

// Active returns a copy of the active instrument list.
func (s *Store) Active() []model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneInstruments(s.active)
}

// ActiveKey returns the sort key of the active list.
func (s *Store) ActiveKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

// RequestedKey returns the most recently requested sort key.
func (s *Store) RequestedKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

// Loading reports whether any fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

// Len returns the size of the active list.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cached returns the cache entry for sortKey, if present and unexpired.
func (s *Store) Cached(sortKey string) (model.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookupLocked(sortKey)
	if !ok {
		return model.CacheEntry{}, false
	}
	entry.Instruments = model.CloneInstruments(entry.Instruments)
	return entry, true
}

// Invalidate drops the cache entry for sortKey. The active list is kept.
func (s *Store) Invalidate(sortKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[sortKey]
	delete(s.cache, sortKey)
	return ok
}

// InvalidateAll drops every cache entry.
func (s *Store) InvalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.cache)
	s.cache = make(map[string]model.CacheEntry)
	return n
}

// Shutdown marks the store closed and cancels in-flight fetches without
// waiting for them. From here on every response is discarded.
func (s *Store) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
}

// Close shuts the store down and waits for in-flight fetches to return.
func (s *Store) Close(ctx context.Context) error {
	s.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("catalog store closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeRSI rounds a numeric rsi to one decimal place. Anything that does
// not parse as a number is returned unchanged.
//
// The value is read as a float64 and the exact binary value is rounded half
// away from zero, so "55.05" (stored as 55.04999...) renders as "55.0", the
// same text clients produce when formatting the number themselves.
func NormalizeRSI(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return raw
	}
	exact, err := decimal.NewFromString(new(big.Float).SetFloat64(f).Text('f', exactFloatDigits))
	if err != nil {
		return raw
	}
	return exact.StringFixed(1)
}

// exactFloatDigits is enough fractional digits to print any float64 exactly.
const exactFloatDigits = 1074

func sortLabel(sortKey string) string {
	if sortKey == "" {
		return "default"
	}
	return sortKey
}
