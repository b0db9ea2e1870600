package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BoardConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Client.UserID == "" {
		return errors.New("client.user_id is required")
	}

	if err := validateURL("api.catalog_url", c.API.CatalogURL); err != nil {
		return err
	}
	if err := validateURL("api.ticker_url", c.API.TickerURL); err != nil {
		return err
	}
	if err := validateURL("api.account_url", c.API.AccountURL); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	switch c.Catalog.DefaultSort {
	case "", "like", "rsi":
	default:
		return fmt.Errorf("catalog.default_sort must be one of \"\", like, rsi, got %q", c.Catalog.DefaultSort)
	}
	if c.Catalog.CacheTTL < 0 {
		return errors.New("catalog.cache_ttl must be >= 0")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.Retention < c.Poller.FreshFor {
		return fmt.Errorf("poller.retention (%s) cannot be shorter than fresh_for (%s)", c.Poller.Retention, c.Poller.FreshFor)
	}

	if c.Highlight.FlashDuration <= 0 {
		return errors.New("highlight.flash_duration must be > 0")
	}

	switch c.Account.AvailableCashDefault {
	case "zero", "cash":
	default:
		return fmt.Errorf("account.available_cash_default must be zero or cash, got %q", c.Account.AvailableCashDefault)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Stream.SendQueue < 1 {
		return errors.New("stream.send_queue must be >= 1")
	}

	if c.Redis.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a log level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("log.level %q is invalid", s)
	}
	return level, nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}
