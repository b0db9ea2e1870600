package config

import "time"

// BoardConfig is the root configuration for a board daemon instance.
type BoardConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Client    ClientConfig    `yaml:"client"`
	API       APIConfig       `yaml:"api"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Poller    PollerConfig    `yaml:"poller"`
	Highlight HighlightConfig `yaml:"highlight"`
	Account   AccountConfig   `yaml:"account"`
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ClientConfig identifies the end user whose board is served.
// The user id is produced by the external authentication collaborator.
type ClientConfig struct {
	UserID string `yaml:"user_id"`
}

// APIConfig holds upstream endpoints.
type APIConfig struct {
	CatalogURL string        `yaml:"catalog_url"` // Catalog backend
	TickerURL  string        `yaml:"ticker_url"`  // Public ticker feed
	AccountURL string        `yaml:"account_url"` // Account backend, defaults to catalog_url
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"` // 0 disables retries
}

// CatalogConfig holds instrument catalog settings.
type CatalogConfig struct {
	DefaultSort  string        `yaml:"default_sort"` // "", "like" or "rsi"
	CacheTTL     time.Duration `yaml:"cache_ttl"`    // 0 keeps entries for the session lifetime
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// PollerConfig holds ticker poller settings.
type PollerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	FreshFor  time.Duration `yaml:"fresh_for"`
	Retention time.Duration `yaml:"retention"`
	Timeout   time.Duration `yaml:"timeout"`
}

// HighlightConfig holds price flash settings.
type HighlightConfig struct {
	FlashDuration time.Duration `yaml:"flash_duration"`
}

// AccountConfig holds account read-side settings.
type AccountConfig struct {
	AvailableCashDefault string `yaml:"available_cash_default"` // "zero" or "cash"
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StreamConfig holds WebSocket push settings.
type StreamConfig struct {
	SendQueue    int           `yaml:"send_queue"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RedisConfig holds the optional board fan-out. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether metrics are served. Unset means enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
