package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/coinboard/internal/model"
)

// Key and channel names.
const (
	LatestKey       = "board:latest"
	boardChannelFmt = "board.%s"
	priceChannelFmt = "prices.%s"
)

// ErrNoBoard is returned by Latest when nothing has been published yet or the
// last board expired.
var ErrNoBoard = errors.New("publish: no board available")

// RedisClient is the subset of *redis.Client the publisher needs.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// RedisPublisher writes boards to Redis pub/sub.
type RedisPublisher struct {
	rdb    RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient dials Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisPublisher creates a publisher. A non-positive ttl keeps the latest
// board without expiry.
func NewRedisPublisher(rdb RedisClient, ttl time.Duration, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisPublisher{rdb: rdb, ttl: ttl, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// PublishBoard sends the board and its records in one pipeline.
func (p *RedisPublisher) PublishBoard(ctx context.Context, board model.Board) error {
	payload, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, LatestKey, payload, p.ttl)
	pipe.Publish(ctx, BoardChannel(board.SessionID), payload)
	for _, rec := range board.Records {
		if !rec.Available {
			continue
		}
		recPayload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Code, err)
		}
		pipe.Publish(ctx, PriceChannel(rec.Code), recPayload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	p.logger.Debug("board published", "records", len(board.Records))
	return nil
}

// Latest reads the last published board back.
func (p *RedisPublisher) Latest(ctx context.Context) (model.Board, error) {
	raw, err := p.rdb.Get(ctx, LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Board{}, ErrNoBoard
	}
	if err != nil {
		return model.Board{}, fmt.Errorf("redis get %s: %w", LatestKey, err)
	}

	var board model.Board
	if err := json.Unmarshal(raw, &board); err != nil {
		return model.Board{}, fmt.Errorf("decode board: %w", err)
	}
	return board, nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// BoardChannel is the pub/sub channel for a session's boards.
func BoardChannel(sessionID string) string {
	return fmt.Sprintf(boardChannelFmt, sessionID)
}

// PriceChannel is the pub/sub channel for one instrument's records.
func PriceChannel(code string) string {
	return fmt.Sprintf(priceChannelFmt, code)
}
