package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTickerURL            = "https://api.bithumb.com"
	DefaultAPITimeout           = 10 * time.Second
	DefaultCatalogFetchTimeout  = 10 * time.Second
	DefaultPollInterval         = 3 * time.Second
	DefaultFreshFor             = 3 * time.Second
	DefaultRetention            = 5 * time.Minute
	DefaultPollTimeout          = 5 * time.Second
	DefaultFlashDuration        = 500 * time.Millisecond
	DefaultAvailableCashDefault = "zero"
	DefaultServerPort           = 8080
	DefaultSendQueue            = 16
	DefaultPingInterval         = 30 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
)

// ApplyDefaults fills unset optional fields.
func (c *BoardConfig) ApplyDefaults() {
	// API defaults
	if c.API.TickerURL == "" {
		c.API.TickerURL = DefaultTickerURL
	}
	if c.API.AccountURL == "" {
		c.API.AccountURL = c.API.CatalogURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Catalog defaults
	if c.Catalog.FetchTimeout == 0 {
		c.Catalog.FetchTimeout = DefaultCatalogFetchTimeout
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.FreshFor == 0 {
		c.Poller.FreshFor = DefaultFreshFor
	}
	if c.Poller.Retention == 0 {
		c.Poller.Retention = DefaultRetention
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Highlight defaults
	if c.Highlight.FlashDuration == 0 {
		c.Highlight.FlashDuration = DefaultFlashDuration
	}

	// Account defaults
	if c.Account.AvailableCashDefault == "" {
		c.Account.AvailableCashDefault = DefaultAvailableCashDefault
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Stream defaults
	if c.Stream.SendQueue == 0 {
		c.Stream.SendQueue = DefaultSendQueue
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
