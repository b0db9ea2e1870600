package api

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString decodes a JSON string, number or null into its text form.
// Upstreams deliver numeric fields inconsistently ("52.3", 52.3, null).
type FlexString struct {
	Value string
	Valid bool // False when the field was null or absent
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = FlexString{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Valid: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Booleans and objects keep their raw text
		*f = FlexString{Value: string(b), Valid: true}
		return nil
	}
	*f = FlexString{Value: n.String(), Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexString) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(f.Value)), nil
}

// String returns the text value, empty when null.
func (f FlexString) String() string {
	return f.Value
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// APIInstrument is one row of GET /coin-name-list.
type APIInstrument struct {
	CoinCode    string     `json:"coinCode"`
	EnglishName string     `json:"englishName"`
	KoreanName  string     `json:"koreanName"`
	RSI         FlexString `json:"rsi"`
	Like        *bool      `json:"like,omitempty"`
}

// -----------------------------------------------------------------------------
// Ticker Types
// -----------------------------------------------------------------------------

// TickerStatusOK is the envelope status of a successful feed response.
const TickerStatusOK = "0000"

// TickerResponse is the envelope of GET /public/ticker/ALL_KRW.
// Data mixes per-instrument objects with scalar members such as "date".
type TickerResponse struct {
	Status  string                     `json:"status"`
	Message string                     `json:"message,omitempty"`
	Data    map[string]json.RawMessage `json:"data"`
}

// APITicker is one instrument member of TickerResponse.Data.
type APITicker struct {
	OpeningPrice     FlexString `json:"opening_price"`
	ClosingPrice     FlexString `json:"closing_price"`
	MinPrice         FlexString `json:"min_price"`
	MaxPrice         FlexString `json:"max_price"`
	UnitsTraded24H   FlexString `json:"units_traded_24H"`
	AccTradeValue24H FlexString `json:"acc_trade_value_24H"`
	Fluctate24H      FlexString `json:"fluctate_24H"`
	FluctateRate24H  FlexString `json:"fluctate_rate_24H"`
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// APIAccountRow is one row of GET /get-user-cash. Cash fields repeat on every
// row; the first row is authoritative.
type APIAccountRow struct {
	Cash          FlexString `json:"cash"`
	AvailableCash FlexString `json:"availableCash"`
	CoinName      string     `json:"coinName"`
	CoinAmount    FlexString `json:"coinAmount"`
	TradePrice    FlexString `json:"tradePrice"`
}

// AvailableCashDefault selects how a missing availableCash is filled.
type AvailableCashDefault string

const (
	CashDefaultZero AvailableCashDefault = "zero" // Missing availableCash reads as 0
	CashDefaultCash AvailableCashDefault = "cash" // Missing availableCash reads as cash
)

// FinancialInfo is the read side of the account backend.
type FinancialInfo struct {
	Cash          float64
	AvailableCash float64
	Assets        []Asset
}

// Asset is one holding row of FinancialInfo.
type Asset struct {
	CoinName   string
	CoinAmount float64
	TradePrice float64
}
