package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Client provides access to the catalog backend and the ticker feed.
type Client struct {
	baseURL    string // Catalog and account backend
	tickerURL  string // Public ticker feed
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	cashDefault AvailableCashDefault
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, tickerURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		tickerURL: tickerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   0,
		retryBackoff: 500 * time.Millisecond,
		cashDefault:  CashDefaultZero,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration. Zero retries means a failed
// request surfaces immediately; callers decide when to try again.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAvailableCashDefault sets how a missing availableCash field is filled.
func WithAvailableCashDefault(d AvailableCashDefault) ClientOption {
	return func(c *Client) {
		c.cashDefault = d
	}
}
