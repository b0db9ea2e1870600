package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinboard/internal/model"
)

// fakeFetcher counts calls per key and optionally blocks until released.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	lists  map[string][]model.Instrument
	errs   map[string]error
	gates  map[string]chan struct{}
	total  atomic.Int32
	called chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  make(map[string]int),
		lists:  make(map[string][]model.Instrument),
		errs:   make(map[string]error),
		gates:  make(map[string]chan struct{}),
		called: make(chan string, 16),
	}
}

func (f *fakeFetcher) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeFetcher) FetchInstruments(ctx context.Context, sortKey string) ([]model.Instrument, error) {
	f.mu.Lock()
	f.calls[sortKey]++
	gate := f.gates[sortKey]
	list := model.CloneInstruments(f.lists[sortKey])
	err := f.errs[sortKey]
	f.mu.Unlock()

	f.total.Add(1)
	f.called <- sortKey

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return list, err
}

func (f *fakeFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func instruments(codes ...string) []model.Instrument {
	out := make([]model.Instrument, len(codes))
	for i, c := range codes {
		out[i] = model.Instrument{Code: c, EnglishName: c, RSI: "50.04"}
	}
	return out
}

func codes(list []model.Instrument) []string {
	out := make([]string, len(list))
	for i, inst := range list {
		out[i] = inst.Code
	}
	return out
}

func TestRequestFetchesAndCaches(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC", "ETH")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))
	assert.Equal(t, []string{"BTC", "ETH"}, codes(s.Active()))
	assert.Equal(t, "", s.ActiveKey())
	assert.False(t, s.Loading())

	// rsi normalized to one decimal
	assert.Equal(t, "50.0", s.Active()[0].RSI)

	entry, ok := s.Cached("")
	require.True(t, ok)
	assert.Len(t, entry.Instruments, 2)
}

func TestRequestSequentialIsIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.lists["rsi"] = instruments("BTC")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), "rsi"))
	require.NoError(t, s.Request(context.Background(), "rsi"))

	assert.Equal(t, 1, f.count("rsi"))
}

func TestRequestConcurrentSharesFetch(t *testing.T) {
	f := newFakeFetcher()
	f.lists["like"] = instruments("BTC", "XRP")
	release := f.gate("like")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Request(context.Background(), "like")
		}(i)
	}

	<-f.called
	assert.Eventually(t, s.Loading, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.count("like"))
	assert.Equal(t, []string{"BTC", "XRP"}, codes(s.Active()))
}

func TestRequestDifferentKeyProceedsWhileInFlight(t *testing.T) {
	f := newFakeFetcher()
	f.lists["rsi"] = instruments("ETH")
	f.lists["like"] = instruments("XRP")
	releaseRSI := f.gate("rsi")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	rsiDone := make(chan error, 1)
	go func() { rsiDone <- s.Request(context.Background(), "rsi") }()
	<-f.called

	// "like" is not blocked by the pending "rsi" fetch.
	require.NoError(t, s.Request(context.Background(), "like"))
	assert.Equal(t, 1, f.count("like"))
	assert.Equal(t, "like", s.ActiveKey())

	close(releaseRSI)
	require.NoError(t, <-rsiDone)

	// The late "rsi" response is cached but not adopted.
	assert.Equal(t, "like", s.ActiveKey())
	assert.Equal(t, []string{"XRP"}, codes(s.Active()))
	_, ok := s.Cached("rsi")
	assert.True(t, ok)

	// Switching back to "rsi" now hits the cache.
	require.NoError(t, s.Request(context.Background(), "rsi"))
	assert.Equal(t, 1, f.count("rsi"))
	assert.Equal(t, []string{"ETH"}, codes(s.Active()))
}

func TestRequestFailureKeepsPreviousList(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	boom := errors.New("connection refused")
	f.errs["rsi"] = boom
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))

	err := s.Request(context.Background(), "rsi")
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Loading())
	assert.Equal(t, []string{"BTC"}, codes(s.Active()))
	assert.Equal(t, "", s.ActiveKey())

	_, ok := s.Cached("rsi")
	assert.False(t, ok)

	// Not cached, so a later request tries again.
	f.mu.Lock()
	delete(f.errs, "rsi")
	f.lists["rsi"] = instruments("ETH")
	f.mu.Unlock()
	require.NoError(t, s.Request(context.Background(), "rsi"))
	assert.Equal(t, 2, f.count("rsi"))
	assert.Equal(t, []string{"ETH"}, codes(s.Active()))
}

func TestDefaultKeyIsDistinct(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	f.lists["like"] = instruments("XRP")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))
	require.NoError(t, s.Request(context.Background(), "like"))
	require.NoError(t, s.Request(context.Background(), ""))

	assert.Equal(t, 1, f.count(""))
	assert.Equal(t, 1, f.count("like"))
	assert.Equal(t, []string{"BTC"}, codes(s.Active()))
}

func TestCacheTTL(t *testing.T) {
	mock := clock.NewMock()
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	s := NewStore(Config{CacheTTL: time.Minute}, f, nil, WithClock(mock))
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))
	mock.Add(30 * time.Second)
	require.NoError(t, s.Request(context.Background(), ""))
	assert.Equal(t, 1, f.count(""))

	mock.Add(time.Minute)
	require.NoError(t, s.Request(context.Background(), ""))
	assert.Equal(t, 2, f.count(""))
}

func TestInvalidate(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	f.lists["rsi"] = instruments("ETH")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))
	require.NoError(t, s.Request(context.Background(), "rsi"))

	assert.True(t, s.Invalidate(""))
	assert.False(t, s.Invalidate(""))
	assert.Equal(t, []string{"ETH"}, codes(s.Active()), "invalidation keeps the active list")

	require.NoError(t, s.Request(context.Background(), ""))
	assert.Equal(t, 2, f.count(""))

	assert.Equal(t, 2, s.InvalidateAll())
	_, ok := s.Cached("rsi")
	assert.False(t, ok)
}

func TestOnChange(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	var mu sync.Mutex
	var keys []string
	s.OnChange(func(key string, list []model.Instrument) {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, key)
		list[0].Code = "MUTATED"
	})

	require.NoError(t, s.Request(context.Background(), ""))
	require.NoError(t, s.Request(context.Background(), ""))

	mu.Lock()
	assert.Equal(t, []string{"", ""}, keys)
	mu.Unlock()
	assert.Equal(t, "BTC", s.Active()[0].Code, "callback receives a copy")
}

func TestActiveReturnsCopy(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	require.NoError(t, s.Request(context.Background(), ""))
	list := s.Active()
	list[0].Code = "MUTATED"
	assert.Equal(t, "BTC", s.Active()[0].Code)
}

func TestCloseDiscardsLateResponse(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	release := f.gate("")
	s := NewStore(DefaultConfig(), f, nil)

	reqDone := make(chan error, 1)
	go func() { reqDone <- s.Request(context.Background(), "") }()
	<-f.called

	closeDone := make(chan error, 1)
	go func() { closeDone <- s.Close(context.Background()) }()

	require.NoError(t, <-closeDone)
	close(release)

	assert.ErrorIs(t, <-reqDone, ErrClosed)
	assert.Empty(t, s.Active())
	_, ok := s.Cached("")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Request(context.Background(), ""), ErrClosed)
	assert.NoError(t, s.Close(context.Background()), "second close is a no-op")
}

func TestRequestReRequestedKeyIsAdopted(t *testing.T) {
	f := newFakeFetcher()
	f.lists["rsi"] = instruments("ETH")
	f.lists["like"] = instruments("XRP")
	releaseRSI := f.gate("rsi")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	first := make(chan error, 1)
	go func() { first <- s.Request(context.Background(), "rsi") }()
	<-f.called

	require.NoError(t, s.Request(context.Background(), "like"))

	// Asking for "rsi" again attaches to the pending fetch and makes it current.
	second := make(chan error, 1)
	go func() { second <- s.Request(context.Background(), "rsi") }()
	require.Eventually(t, func() bool { return s.RequestedKey() == "rsi" }, time.Second, time.Millisecond)

	close(releaseRSI)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	assert.Equal(t, 1, f.count("rsi"))
	assert.Equal(t, "rsi", s.ActiveKey())
	assert.Equal(t, []string{"ETH"}, codes(s.Active()))
}

func TestShutdownDiscardsResponseWithoutWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, sortKey string) ([]model.Instrument, error) {
		close(started)
		<-release
		return instruments("BTC"), nil
	})
	s := NewStore(DefaultConfig(), fetcher, nil)

	var changes atomic.Int32
	s.OnChange(func(string, []model.Instrument) { changes.Add(1) })

	reqDone := make(chan error, 1)
	go func() { reqDone <- s.Request(context.Background(), "rsi") }()
	<-started

	s.Shutdown()
	close(release)

	assert.ErrorIs(t, <-reqDone, ErrClosed)
	assert.Empty(t, s.Active())
	assert.Equal(t, "", s.ActiveKey())
	assert.Equal(t, int32(0), changes.Load())
	assert.NoError(t, s.Close(context.Background()))
}

func TestRequestContextCancel(t *testing.T) {
	f := newFakeFetcher()
	f.lists[""] = instruments("BTC")
	release := f.gate("")
	s := NewStore(DefaultConfig(), f, nil)
	defer s.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	reqDone := make(chan error, 1)
	go func() { reqDone <- s.Request(ctx, "") }()
	<-f.called
	cancel()

	assert.ErrorIs(t, <-reqDone, context.Canceled)

	// The shared fetch still completes and is adopted.
	close(release)
	assert.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, time.Millisecond)
}

func TestNormalizeRSI(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"52.34", "52.3"},
		{"52.35", "52.4"},
		{"48", "48.0"},
		{" 61.66 ", "61.7"},
		{"55.05", "55.0"},
		{"2.45", "2.5"},
		{"0.25", "0.3"},
		{"-0.25", "-0.3"},
		{"50.04", "50.0"},
		{"NaN", "NaN"},
		{"-", "-"},
		{"N/A", "N/A"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRSI(tt.input))
		})
	}
}
