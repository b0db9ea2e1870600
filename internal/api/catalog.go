package api

import (
	"context"
	"net/url"

	"github.com/rickgao/coinboard/internal/model"
)

// GetInstruments fetches the ordered instrument list for a sort key.
// An empty sortKey requests the backend's default order.
func (c *Client) GetInstruments(ctx context.Context, userID, sortKey string) ([]model.Instrument, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("state", sortKey)

	var resp []APIInstrument
	if err := c.get(ctx, "get instruments", c.baseURL, "/coin-name-list", query, &resp); err != nil {
		return nil, err
	}

	instruments := make([]model.Instrument, 0, len(resp))
	for i := range resp {
		if resp[i].CoinCode == "" {
			c.logger.Warn("skipping instrument without code", "index", i, "sort", sortKey)
			continue
		}
		instruments = append(instruments, resp[i].ToModel())
	}

	c.logger.Debug("fetched instruments", "sort", sortKey, "count", len(instruments))
	return instruments, nil
}

// CatalogSource binds a Client to one user so it can serve catalog fetches.
type CatalogSource struct {
	Client *Client
	UserID string
}

// FetchInstruments implements catalog.Fetcher.
func (s CatalogSource) FetchInstruments(ctx context.Context, sortKey string) ([]model.Instrument, error) {
	return s.Client.GetInstruments(ctx, s.UserID, sortKey)
}
