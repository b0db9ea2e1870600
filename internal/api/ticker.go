package api

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rickgao/coinboard/internal/model"
)

// tickerPath is the full-market snapshot endpoint of the feed.
const tickerPath = "/public/ticker/ALL_KRW"

// GetTickerAll fetches the full price snapshot of every instrument.
// Non-object members of data (e.g. "date") are skipped.
func (c *Client) GetTickerAll(ctx context.Context) (map[string]model.TickerEntry, error) {
	var resp TickerResponse
	if err := c.get(ctx, "get ticker", c.tickerURL, tickerPath, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status != TickerStatusOK {
		return nil, &NetworkError{
			Op:  "get ticker",
			Err: &FeedStatusError{Status: resp.Status, Message: resp.Message},
		}
	}
	if resp.Data == nil {
		return nil, &DataShapeError{Field: "data", Reason: "missing"}
	}

	entries := make(map[string]model.TickerEntry, len(resp.Data))
	for code, raw := range resp.Data {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}

		var t APITicker
		if err := json.Unmarshal(raw, &t); err != nil {
			c.logger.Warn("skipping undecodable ticker entry", "code", code, "err", err)
			continue
		}
		entries[code] = t.ToModel()
	}

	c.logger.Debug("fetched ticker", "count", len(entries))
	return entries, nil
}

// TickerSource adapts a Client to the poller's snapshot fetcher.
type TickerSource struct {
	Client *Client
	Now    func() time.Time // Defaults to time.Now
}

// FetchSnapshot implements poller.SnapshotFetcher.
func (s TickerSource) FetchSnapshot(ctx context.Context) (model.TickerSnapshot, error) {
	entries, err := s.Client.GetTickerAll(ctx)
	if err != nil {
		return model.TickerSnapshot{}, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return model.TickerSnapshot{Entries: entries, FetchedAt: now()}, nil
}
