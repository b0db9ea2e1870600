package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinboard/internal/api"
	"github.com/rickgao/coinboard/internal/catalog"
	"github.com/rickgao/coinboard/internal/model"
)

// recordingSink keeps every board it receives.
type recordingSink struct {
	mu     sync.Mutex
	boards []model.Board
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) PublishBoard(ctx context.Context, board model.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, board)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// feedServer serves a one-instrument ticker with a settable price.
type feedServer struct {
	*httptest.Server
	price atomic.Value
	fail  atomic.Bool
	hits  atomic.Int32
}

func newFeedServer(t *testing.T, price string) *feedServer {
	t.Helper()
	f := &feedServer{}
	f.price.Store(price)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"status":"0000","data":{"BTC":{"closing_price":%q,"fluctate_rate_24H":"1.2","acc_trade_value_24H":"2000000"},"date":"1712345678901"}}`,
			f.price.Load().(string))
	}))
	t.Cleanup(f.Close)
	return f
}

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coin-name-list":
			w.Write([]byte(`[{"coinCode":"BTC","englishName":"Bitcoin","koreanName":"비트코인","rsi":"55.2"}]`))
		case "/get-user-cash":
			w.Write([]byte(`[{"cash":"1000","availableCash":"800","coinName":"BTC","coinAmount":"0.25","tradePrice":"48000000"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHTTPSession(t *testing.T, mock *clock.Mock, backend, feed string, sinks ...BoardSink) *Session {
	t.Helper()
	client := api.NewClient(backend, feed, api.WithTimeout(5*time.Second))
	s, err := New(DefaultConfig(), Deps{
		Catalog: api.CatalogSource{Client: client, UserID: "u1"},
		Ticker:  api.TickerSource{Client: client, Now: mock.Now},
		Account: api.AccountSource{Client: client, UserID: "u1"},
		Sinks:   sinks,
		Clock:   mock,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func record(t *testing.T, s *Session, code string) model.RenderRecord {
	t.Helper()
	for _, r := range s.Board().Records {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("no record for %s", code)
	return model.RenderRecord{}
}

func TestEndToEnd(t *testing.T) {
	mock := clock.NewMock()
	feed := newFeedServer(t, "50000000")
	backend := newCatalogServer(t)
	sink := &recordingSink{}
	s := newHTTPSession(t, mock, backend.URL, feed.URL, sink)

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		b := s.Board()
		return len(b.Records) == 1 && b.Records[0].Available
	}, 2*time.Second, time.Millisecond)

	rec := record(t, s, "BTC")
	assert.Equal(t, "비트코인", rec.DisplayName)
	assert.Equal(t, "50000000", rec.Price)
	assert.Equal(t, 1.2, rec.ChangeRate)
	assert.Equal(t, "2.00", rec.Volume)
	assert.Equal(t, "55.2", rec.RSI)
	assert.Equal(t, model.DirectionNone, rec.Highlight, "first observation has no prior price")

	feed.price.Store("51000000")
	mock.Add(3 * time.Second)

	require.Eventually(t, func() bool {
		return record(t, s, "BTC").Highlight == model.DirectionUp
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, "51000000", record(t, s, "BTC").Price)

	mock.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool {
		return record(t, s, "BTC").Highlight == model.DirectionNone
	}, 2*time.Second, time.Millisecond)

	assert.Greater(t, sink.count(), 0)
	h := s.Health()
	assert.Equal(t, StatusOK, h.Status)
	assert.Equal(t, 1, h.Catalog.Instruments)
}

func TestStaleOnFailure(t *testing.T) {
	mock := clock.NewMock()
	feed := newFeedServer(t, "50000000")
	backend := newCatalogServer(t)
	s := newHTTPSession(t, mock, backend.URL, feed.URL)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return record(t, s, "BTC").Available }, 2*time.Second, time.Millisecond)

	feed.fail.Store(true)
	hits := feed.hits.Load()
	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return feed.hits.Load() > hits && s.poller.Stats().ConsecutiveFailures > 0 }, 2*time.Second, time.Millisecond)

	board := s.Board()
	require.Len(t, board.Records, 1)
	assert.Equal(t, "50000000", board.Records[0].Price)
	assert.True(t, board.Records[0].Available)
	assert.True(t, board.Stale)
	assert.Equal(t, StatusDegraded, s.Health().Status)
}

func TestOnSelect(t *testing.T) {
	mock := clock.NewMock()
	feed := newFeedServer(t, "50000000")
	backend := newCatalogServer(t)
	sink := &recordingSink{}
	s := newHTTPSession(t, mock, backend.URL, feed.URL, sink)

	sel, err := s.OnSelect(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, sel.Holding)
	assert.True(t, sel.Holding.Amount.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "BTC", s.Board().Selected)
	assert.Equal(t, 1, sink.count())

	sel, err = s.OnSelect(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Nil(t, sel.Holding)

	_, err = s.OnSelect(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestOnSortChangeUsesCache(t *testing.T) {
	var calls sync.Map
	fetcher := catalog.FetcherFunc(func(ctx context.Context, sortKey string) ([]model.Instrument, error) {
		n, _ := calls.LoadOrStore(sortKey, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		return []model.Instrument{{Code: "BTC"}, {Code: sortKey + "X"}}, nil
	})
	ticker := tickerFunc(func(ctx context.Context) (model.TickerSnapshot, error) {
		return model.TickerSnapshot{Entries: map[string]model.TickerEntry{}}, nil
	})

	s, err := New(DefaultConfig(), Deps{Catalog: fetcher, Ticker: ticker, Clock: clock.NewMock()}, nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	require.NoError(t, s.OnSortChange(context.Background(), "rsi"))
	require.NoError(t, s.OnSortChange(context.Background(), "like"))
	require.NoError(t, s.OnSortChange(context.Background(), "rsi"))

	n, _ := calls.Load("rsi")
	assert.Equal(t, int32(1), n.(*atomic.Int32).Load())

	board := s.Board()
	assert.Equal(t, "rsi", board.SortKey)
	require.Len(t, board.Records, 2)
	assert.Equal(t, "rsiX", board.Records[1].Code)
	assert.False(t, board.Records[1].Available)

	assert.True(t, s.Invalidate("rsi"))
	require.NoError(t, s.OnSortChange(context.Background(), "rsi"))
	assert.Equal(t, int32(2), n.(*atomic.Int32).Load())
}

func TestStopDiscardsLateCatalog(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := catalog.FetcherFunc(func(ctx context.Context, sortKey string) ([]model.Instrument, error) {
		close(started)
		<-release
		return []model.Instrument{{Code: "BTC"}}, nil
	})
	ticker := tickerFunc(func(ctx context.Context) (model.TickerSnapshot, error) {
		return model.TickerSnapshot{}, errors.New("unused")
	})

	sink := &recordingSink{}
	s, err := New(DefaultConfig(), Deps{Catalog: fetcher, Ticker: ticker, Sinks: []BoardSink{sink}, Clock: clock.NewMock()}, nil)
	require.NoError(t, err)

	reqDone := make(chan error, 1)
	go func() { reqDone <- s.OnSortChange(context.Background(), "") }()
	<-started

	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(context.Background()) }()

	// Stop waits for the fetch goroutine; release it after teardown began.
	require.Eventually(t, s.Stopped, time.Second, time.Millisecond)
	close(release)

	assert.ErrorIs(t, <-reqDone, catalog.ErrClosed)
	require.NoError(t, <-stopDone)
	assert.Empty(t, s.Board().Records)
	assert.Equal(t, 0, s.store.Len())
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, StatusStopped, s.Health().Status)

	assert.ErrorIs(t, s.OnSortChange(context.Background(), "rsi"), ErrStopped)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStopWithPollInFlightDiscardsLateCatalog(t *testing.T) {
	rsiStarted := make(chan struct{})
	rsiRelease := make(chan struct{})
	fetcher := catalog.FetcherFunc(func(ctx context.Context, sortKey string) ([]model.Instrument, error) {
		if sortKey == "rsi" {
			close(rsiStarted)
			<-rsiRelease
			return []model.Instrument{{Code: "ETH"}}, nil
		}
		return []model.Instrument{{Code: "BTC"}}, nil
	})

	var polls atomic.Int32
	pollRelease := make(chan struct{})
	ticker := tickerFunc(func(ctx context.Context) (model.TickerSnapshot, error) {
		if polls.Add(1) > 1 {
			<-pollRelease
		}
		return model.TickerSnapshot{Entries: map[string]model.TickerEntry{
			"BTC": {ClosingPrice: "50000000", FluctateRate24H: "0", AccTradeValue24H: "1000000"},
		}}, nil
	})

	mock := clock.NewMock()
	cfg := DefaultConfig()
	s, err := New(cfg, Deps{Catalog: fetcher, Ticker: ticker, Clock: mock}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return record(t, s, "BTC").Available }, 2*time.Second, time.Millisecond)

	// Drive the loop until a second poll is blocked upstream.
	require.Eventually(t, func() bool {
		mock.Add(cfg.Poller.Interval)
		return polls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	reqDone := make(chan error, 1)
	go func() { reqDone <- s.OnSortChange(context.Background(), "rsi") }()
	<-rsiStarted

	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(context.Background()) }()
	require.Eventually(t, s.Stopped, time.Second, time.Millisecond)

	// The catalog answers while Stop is still draining the poll.
	close(rsiRelease)
	assert.ErrorIs(t, <-reqDone, catalog.ErrClosed)

	select {
	case err := <-stopDone:
		t.Fatalf("Stop returned before the in-flight poll: %v", err)
	default:
	}

	assert.Equal(t, "", s.store.ActiveKey())
	board := s.Board()
	require.Len(t, board.Records, 1)
	assert.Equal(t, "BTC", board.Records[0].Code)

	close(pollRelease)
	require.NoError(t, <-stopDone)
	assert.Equal(t, "", s.Board().SortKey)
	assert.Equal(t, StatusStopped, s.Health().Status)
}

func TestNewRequiresFetchers(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{}, nil)
	assert.Error(t, err)
}

type tickerFunc func(ctx context.Context) (model.TickerSnapshot, error)

func (f tickerFunc) FetchSnapshot(ctx context.Context) (model.TickerSnapshot, error) {
	return f(ctx)
}
