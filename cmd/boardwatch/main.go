// boardwatch connects to a running boardd and prints pushed boards to the console.
// Usage: go run ./cmd/boardwatch --url ws://localhost:8080/ws --sort rsi
//
// With --redis it subscribes to the Redis fan-out instead of the WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/coinboard/internal/model"
	"github.com/rickgao/coinboard/internal/stream"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "board stream URL")
	redisAddr := flag.String("redis", "", "read boards from Redis pub/sub at this address instead")
	sortKey := flag.String("sort", "", "sort key to request after connecting (like, rsi)")
	selectCode := flag.String("select", "", "instrument code to select after connecting")
	rows := flag.Int("rows", 20, "rows to print per board (0 prints all)")
	verbose := flag.Bool("verbose", false, "print full board JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	p := printer{rows: *rows, verbose: *verbose}

	if *redisAddr != "" {
		if err := watchRedis(ctx, *redisAddr, p, logger); err != nil {
			logger.Error("redis watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	client := stream.NewClient(stream.DefaultClientConfig(*url), logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer client.Close()
	logger.Info("connected", "url", *url)

	if *sortKey != "" {
		if err := client.Send(stream.Command{Op: stream.OpSort, Sort: *sortKey}); err != nil {
			logger.Error("failed to send sort", "error", err)
		}
	}
	if *selectCode != "" {
		if err := client.Send(stream.Command{Op: stream.OpSelect, Code: *selectCode}); err != nil {
			logger.Error("failed to send select", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return
		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			logger.Error("stream error", "error", err)
			return
		case msg, ok := <-client.Messages():
			if !ok {
				logger.Info("stream closed")
				return
			}
			m, err := stream.DecodeMessage(msg.Data)
			if err != nil {
				logger.Warn("undecodable frame", "error", err)
				continue
			}
			p.message(m, msg.ReceivedAt)
		}
	}
}

func watchRedis(ctx context.Context, addr string, p printer, logger *slog.Logger) error {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", addr, err)
	}

	sub := rdb.PSubscribe(ctx, "board.*")
	defer sub.Close()
	logger.Info("subscribed", "addr", addr, "pattern", "board.*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var board model.Board
			if err := json.Unmarshal([]byte(msg.Payload), &board); err != nil {
				logger.Warn("undecodable board", "channel", msg.Channel, "error", err)
				continue
			}
			p.board(board, time.Now())
		}
	}
}

type printer struct {
	rows    int
	verbose bool
}

func (p printer) message(m stream.Message, at time.Time) {
	switch m.Type {
	case stream.TypeBoard:
		if m.Board != nil {
			p.board(*m.Board, at)
		}
	case stream.TypeAck:
		if m.Selection != nil {
			holding := "none"
			if h := m.Selection.Holding; h != nil {
				holding = fmt.Sprintf("%s @ %s", h.Amount.String(), h.TradePrice.String())
			}
			fmt.Printf("[ACK] op=%s code=%s holding=%s\n", m.Op, m.Selection.Code, holding)
		} else {
			fmt.Printf("[ACK] op=%s\n", m.Op)
		}
	case stream.TypeError:
		fmt.Printf("[ERROR] op=%s %s\n", m.Op, m.Error)
	}
}

func (p printer) board(b model.Board, at time.Time) {
	if p.verbose {
		data, _ := json.MarshalIndent(b, "", "  ")
		fmt.Printf("[BOARD] %s\n", data)
		return
	}

	sortKey := b.SortKey
	if sortKey == "" {
		sortKey = "default"
	}
	stale := ""
	if b.Stale {
		stale = " STALE"
	}
	fmt.Printf("[BOARD] %s sort=%s rows=%d snapshot=%s%s\n",
		at.Format("15:04:05.000"), sortKey, len(b.Records), b.SnapshotAt.Format("15:04:05"), stale)

	records := b.Records
	if p.rows > 0 && len(records) > p.rows {
		records = records[:p.rows]
	}
	for _, r := range records {
		marker := " "
		switch r.Highlight {
		case model.DirectionUp:
			marker = "+"
		case model.DirectionDown:
			marker = "-"
		}
		selected := " "
		if r.Code == b.Selected {
			selected = "*"
		}
		volume := r.Volume
		if r.VolumeUnit != "" {
			volume += r.VolumeUnit
		}
		fmt.Printf(" %s%s %-8s %-16s %16s %7.2f%% %14s rsi=%s\n",
			selected, marker, r.Code, truncate(r.DisplayName, 16), r.Price, r.ChangeRate, volume, r.RSI)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
