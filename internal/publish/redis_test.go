package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/coinboard/internal/model"
)

func newTestPublisher(t *testing.T, ttl time.Duration) (*RedisPublisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisPublisher(rdb, ttl, nil), mr, rdb
}

func testBoard() model.Board {
	return model.Board{
		SessionID: "sess-1",
		SortKey:   "like",
		Records: []model.RenderRecord{
			{Code: "BTC", DisplayName: "비트코인", Price: "50000000", ChangeRate: 1.5, ChangeClass: model.ChangeRise, Volume: "1234.57", VolumeUnit: model.VolumeUnitMillions, Available: true},
			{Code: "XRP", DisplayName: "리플", Price: model.Unavailable, ChangeClass: model.ChangeEven, Volume: model.Unavailable},
		},
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisPublisher_SetsLatestWithTTL(t *testing.T) {
	pub, mr, _ := newTestPublisher(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, pub.PublishBoard(ctx, testBoard()))

	require.True(t, mr.Exists(LatestKey))
	assert.Equal(t, 5*time.Minute, mr.TTL(LatestKey))

	raw, err := mr.Get(LatestKey)
	require.NoError(t, err)
	var got model.Board
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Len(t, got.Records, 2)
}

func TestRedisPublisher_ZeroTTLNeverExpires(t *testing.T) {
	pub, mr, _ := newTestPublisher(t, 0)

	require.NoError(t, pub.PublishBoard(context.Background(), testBoard()))
	assert.Equal(t, time.Duration(0), mr.TTL(LatestKey))
}

func TestRedisPublisher_PublishesChannels(t *testing.T) {
	pub, _, rdb := newTestPublisher(t, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, BoardChannel("sess-1"), PriceChannel("BTC"), PriceChannel("XRP"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.PublishBoard(ctx, testBoard()))

	got := map[string]string{}
	ch := sub.Channel()
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got[msg.Channel] = msg.Payload
		case <-ctx.Done():
			t.Fatalf("timed out, received %v", got)
		}
	}

	require.Contains(t, got, "board.sess-1")
	require.Contains(t, got, "prices.BTC")
	assert.NotContains(t, got, "prices.XRP")

	var rec model.RenderRecord
	require.NoError(t, json.Unmarshal([]byte(got["prices.BTC"]), &rec))
	assert.Equal(t, "50000000", rec.Price)
	assert.True(t, rec.Available)
}

func TestRedisPublisher_Latest(t *testing.T) {
	pub, mr, _ := newTestPublisher(t, time.Minute)
	ctx := context.Background()

	_, err := pub.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoBoard)

	require.NoError(t, pub.PublishBoard(ctx, testBoard()))
	board, err := pub.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "like", board.SortKey)

	mr.FastForward(2 * time.Minute)
	_, err = pub.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoBoard)
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	pub, mr, _ := newTestPublisher(t, time.Minute)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, pub.PublishBoard(ctx, testBoard()))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	assert.Equal(t, "redis", NewRedisPublisher(nil, 0, nil).Name())
}
