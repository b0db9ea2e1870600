package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/coinboard/internal/api"
	"github.com/rickgao/coinboard/internal/catalog"
	"github.com/rickgao/coinboard/internal/config"
	"github.com/rickgao/coinboard/internal/highlight"
	"github.com/rickgao/coinboard/internal/httpapi"
	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/poller"
	"github.com/rickgao/coinboard/internal/publish"
	"github.com/rickgao/coinboard/internal/session"
	"github.com/rickgao/coinboard/internal/stream"
	"github.com/rickgao/coinboard/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/boardd.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// Set up structured logging; the level is adjusted once config is loaded
	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting boardd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := config.LoadDotEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "path", *envPath, "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if lvl, err := config.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(lvl)
	}
	logger = logger.With("instance", cfg.Instance.ID)

	logger.Info("configuration loaded",
		"catalog_url", cfg.API.CatalogURL,
		"ticker_url", cfg.API.TickerURL,
		"default_sort", cfg.Catalog.DefaultSort,
		"poll_interval", cfg.Poller.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Upstream clients
	clientOpts := []api.ClientOption{
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, 500*time.Millisecond),
		api.WithAvailableCashDefault(api.AvailableCashDefault(cfg.Account.AvailableCashDefault)),
	}
	apiClient := api.NewClient(cfg.API.CatalogURL, cfg.API.TickerURL, clientOpts...)
	accountClient := apiClient
	if cfg.API.AccountURL != cfg.API.CatalogURL {
		accountClient = api.NewClient(cfg.API.AccountURL, cfg.API.TickerURL, clientOpts...)
	}

	// Board sinks
	hub := stream.NewHub(stream.HubConfig{
		SendQueue:      cfg.Stream.SendQueue,
		PingInterval:   cfg.Stream.PingInterval,
		WriteTimeout:   cfg.Stream.WriteTimeout,
		CommandTimeout: cfg.Catalog.FetchTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, nil, logger.With("component", "stream"))

	sinks := []session.BoardSink{hub}

	var redisPub *publish.RedisPublisher
	if cfg.Redis.Addr != "" {
		logger.Info("connecting to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		rdb, err := publish.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		redisPub = publish.NewRedisPublisher(rdb, cfg.Poller.Retention, logger.With("component", "redis"))
		sinks = append(sinks, redisPub)
		logger.Info("redis connected")
	}

	// Session
	sessCfg := session.DefaultConfig()
	sessCfg.DefaultSort = cfg.Catalog.DefaultSort
	sessCfg.Catalog = catalog.Config{
		CacheTTL:     cfg.Catalog.CacheTTL,
		FetchTimeout: cfg.Catalog.FetchTimeout,
	}
	sessCfg.Poller = poller.Config{
		Interval:  cfg.Poller.Interval,
		FreshFor:  cfg.Poller.FreshFor,
		Retention: cfg.Poller.Retention,
		Timeout:   cfg.Poller.Timeout,
	}
	sessCfg.Highlight = highlight.Config{FlashDuration: cfg.Highlight.FlashDuration}

	sess, err := session.New(sessCfg, session.Deps{
		Catalog: api.CatalogSource{Client: apiClient, UserID: cfg.Client.UserID},
		Ticker:  api.TickerSource{Client: apiClient},
		Account: api.AccountSource{Client: accountClient, UserID: cfg.Client.UserID},
		Sinks:   sinks,
	}, logger)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}
	hub.SetHandler(sess)

	// HTTP boundary
	serverOpts := []httpapi.Option{
		httpapi.WithLogger(logger.With("component", "http")),
		httpapi.WithStream(hub),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httpapi.WithCommandTimeout(cfg.Catalog.FetchTimeout),
	}
	if cfg.Metrics.IsEnabled() {
		serverOpts = append(serverOpts, httpapi.WithMetrics(cfg.Metrics.Path, metrics.Handler()))
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           httpapi.NewServer(sess, serverOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sess.Start(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		logger.Info("boardd running",
			"session", sess.ID(),
			"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := sess.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop session: %w", err))
		}
		if err := hub.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("close stream hub: %w", err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		if redisPub != nil {
			if err := redisPub.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("boardd stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("boardd stopped")
}
