// feedcheck fetches the catalog and the ticker feed once, merges them and prints the board.
// Usage: go run ./cmd/feedcheck --config configs/boardd.yaml --sort like
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/coinboard/internal/api"
	"github.com/rickgao/coinboard/internal/catalog"
	"github.com/rickgao/coinboard/internal/config"
	"github.com/rickgao/coinboard/internal/merge"
	"github.com/rickgao/coinboard/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/boardd.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	sortKey := flag.String("sort", "", "sort key (like, rsi); defaults to catalog.default_sort")
	asJSON := flag.Bool("json", false, "print the merged records as JSON")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := config.LoadDotEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *sortKey == "" {
		*sortKey = cfg.Catalog.DefaultSort
	}

	client := api.NewClient(cfg.API.CatalogURL, cfg.API.TickerURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, 500*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		instruments []model.Instrument
		snapshot    model.TickerSnapshot
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := client.GetInstruments(gctx, cfg.Client.UserID, *sortKey)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		for i := range list {
			list[i].RSI = catalog.NormalizeRSI(list[i].RSI)
		}
		instruments = list
		return nil
	})
	g.Go(func() error {
		snap, err := api.TickerSource{Client: client}.FetchSnapshot(gctx)
		if err != nil {
			return fmt.Errorf("ticker: %w", err)
		}
		snapshot = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("fetch failed", "error", err,
			"network", api.IsNetworkError(err),
			"data_shape", api.IsDataShapeError(err),
		)
		os.Exit(1)
	}

	records, errs := merge.MergeReport(instruments, snapshot)
	logger.Info("fetched",
		"instruments", len(instruments),
		"tickers", snapshot.Len(),
		"degraded", len(errs),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	for _, err := range errs {
		logger.Warn("record degraded", "error", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			logger.Error("encode failed", "error", err)
			os.Exit(1)
		}
		return
	}

	missing := 0
	for _, r := range records {
		if !r.Available {
			missing++
		}
		fmt.Printf("%-8s %-20s %16s %7.2f%% %-4s %12s%s rsi=%s liked=%t\n",
			r.Code, r.DisplayName, r.Price, r.ChangeRate, r.ChangeClass, r.Volume, r.VolumeUnit, r.RSI, r.Liked)
	}
	fmt.Printf("\n%d instruments, %d without ticker data\n", len(records), missing)
}
