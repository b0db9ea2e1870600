package highlight

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/model"
)

// Config holds tracker configuration.
type Config struct {
	FlashDuration time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{FlashDuration: 500 * time.Millisecond}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for flash timers.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// entry is the per-instrument state.
type entry struct {
	last    decimal.Decimal
	hasLast bool
	state   model.HighlightState
	timer   *clock.Timer
	gen     uint64 // Bumped on every transition; stale expiries compare against it
}

// Tracker owns highlight state for every observed instrument.
type Tracker struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	entries      map[string]*entry
	timers       int
	closed       bool
	onTransition func(code string, state model.HighlightState)
}

// New creates a Tracker.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		cfg:     cfg,
		clock:   clock.New(),
		logger:  logger,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnTransition registers a callback fired on every state change, including
// expiry back to none. It runs without the tracker lock held.
func (t *Tracker) OnTransition(fn func(code string, state model.HighlightState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = fn
}

// Observe feeds a new price for code. Equal or non-numeric prices cause no
// transition; a non-numeric price does not replace the last good one.
// Returns the direction entered, or none.
func (t *Tracker) Observe(code, price string) model.Direction {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return model.DirectionNone
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.DirectionNone
	}

	e, ok := t.entries[code]
	if !ok {
		e = &entry{}
		t.entries[code] = e
	}

	prev, hadPrev := e.last, e.hasLast
	e.last, e.hasLast = p, true
	if !hadPrev {
		t.mu.Unlock()
		return model.DirectionNone
	}

	var dir model.Direction
	switch p.Cmp(prev) {
	case 1:
		dir = model.DirectionUp
	case -1:
		dir = model.DirectionDown
	default:
		t.mu.Unlock()
		return model.DirectionNone
	}

	t.stopTimerLocked(e)
	e.gen++
	gen := e.gen
	e.state = model.HighlightState{
		Direction: dir,
		ExpiresAt: t.clock.Now().Add(t.cfg.FlashDuration),
	}
	e.timer = t.clock.AfterFunc(t.cfg.FlashDuration, func() { t.expire(code, gen) })
	t.timers++
	metrics.HighlightActiveTimers.Set(float64(t.timers))

	state := e.state
	fn := t.onTransition
	t.mu.Unlock()

	metrics.HighlightTransitions.WithLabelValues(dir.String()).Inc()
	if fn != nil {
		fn(code, state)
	}
	return dir
}

// expire clears the flash for code if gen is still current.
func (t *Tracker) expire(code string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[code]
	if !ok || t.closed || e.gen != gen || e.timer == nil {
		t.mu.Unlock()
		return
	}

	e.timer = nil
	t.timers--
	metrics.HighlightActiveTimers.Set(float64(t.timers))
	e.state = model.HighlightState{}

	fn := t.onTransition
	t.mu.Unlock()

	if fn != nil {
		fn(code, model.HighlightState{})
	}
}

func (t *Tracker) stopTimerLocked(e *entry) {
	if e.timer == nil {
		return
	}
	e.timer.Stop()
	e.timer = nil
	t.timers--
	metrics.HighlightActiveTimers.Set(float64(t.timers))
}

// State returns the current highlight of code.
func (t *Tracker) State(code string) model.HighlightState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[code]; ok {
		return e.state
	}
	return model.HighlightState{}
}

// Annotate copies each record's highlight direction from the tracker.
func (t *Tracker) Annotate(records []model.RenderRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range records {
		if e, ok := t.entries[records[i].Code]; ok {
			records[i].Highlight = e.state.Direction
		} else {
			records[i].Highlight = model.DirectionNone
		}
	}
}

// ActiveTimers returns the number of pending flash timers.
func (t *Tracker) ActiveTimers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timers
}

// Forget drops all state for the given codes, cancelling their timers.
func (t *Tracker) Forget(codes ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, code := range codes {
		t.forgetLocked(code)
	}
}

// Retain drops state for every code not in keep.
func (t *Tracker) Retain(keep []string) {
	set := make(map[string]struct{}, len(keep))
	for _, c := range keep {
		set[c] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for code := range t.entries {
		if _, ok := set[code]; !ok {
			t.forgetLocked(code)
		}
	}
}

func (t *Tracker) forgetLocked(code string) {
	e, ok := t.entries[code]
	if !ok {
		return
	}
	t.stopTimerLocked(e)
	e.gen++
	delete(t.entries, code)
}

// Close cancels every pending timer. Later observations are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for code := range t.entries {
		t.forgetLocked(code)
	}
	t.logger.Debug("highlight tracker closed")
}
