package api

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinboard/internal/model"
)

// GetFinancialInfo fetches the user's cash and holdings. Unparseable numbers
// read as 0; a missing availableCash follows the client's AvailableCashDefault.
func (c *Client) GetFinancialInfo(ctx context.Context, userID string) (*FinancialInfo, error) {
	query := url.Values{}
	query.Set("userId", userID)

	var rows []APIAccountRow
	if err := c.get(ctx, "get financial info", c.baseURL, "/get-user-cash", query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &DataShapeError{Field: "body", Reason: "empty account response"}
	}

	info := &FinancialInfo{
		Cash:   ParseFloatOrZero(rows[0].Cash.String()),
		Assets: make([]Asset, 0, len(rows)),
	}

	switch {
	case rows[0].AvailableCash.Valid:
		info.AvailableCash = ParseFloatOrZero(rows[0].AvailableCash.String())
	case c.cashDefault == CashDefaultCash:
		info.AvailableCash = info.Cash
	default:
		info.AvailableCash = 0
	}

	for _, r := range rows {
		if r.CoinName == "" {
			continue
		}
		info.Assets = append(info.Assets, Asset{
			CoinName:   r.CoinName,
			CoinAmount: ParseFloatOrZero(r.CoinAmount.String()),
			TradePrice: ParseFloatOrZero(r.TradePrice.String()),
		})
	}

	return info, nil
}

// Holding returns the user's position in one instrument, or nil if the user
// holds none of it.
func (c *Client) Holding(ctx context.Context, userID, code string) (*model.Holding, error) {
	if userID == "" || code == "" {
		return nil, nil
	}

	info, err := c.GetFinancialInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, a := range info.Assets {
		if a.CoinName != code || a.CoinAmount <= 0 {
			continue
		}
		return &model.Holding{
			Code:       code,
			Amount:     decimal.NewFromFloat(a.CoinAmount),
			TradePrice: decimal.NewFromFloat(a.TradePrice),
		}, nil
	}
	return nil, nil
}

// AccountSource binds a Client to one user so it can resolve holdings.
type AccountSource struct {
	Client *Client
	UserID string
}

// Holding implements session.AccountProvider.
func (s AccountSource) Holding(ctx context.Context, code string) (*model.Holding, error) {
	return s.Client.Holding(ctx, s.UserID, code)
}
