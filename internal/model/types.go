package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel values used in render records.
const (
	Unavailable        = "N/A" // Price/volume of an instrument missing from the snapshot
	VolumeUnitMillions = "M"   // Volume is expressed in millions of the quote currency
)

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// Instrument is a tradable asset in the catalog.
type Instrument struct {
	Code        string // Primary key (e.g., "BTC")
	EnglishName string // e.g., "Bitcoin"
	KoreanName  string // e.g., "비트코인"
	RSI         string // Indicator value as delivered (normalized by the catalog store)
	Liked       bool   // User marked as favorite
}

// CacheEntry is the result of one catalog fetch for a sort key.
type CacheEntry struct {
	SortKey     string
	Instruments []Instrument
	FetchedAt   time.Time
}

// CloneInstruments returns a copy of the slice so callers cannot mutate owner state.
func CloneInstruments(in []Instrument) []Instrument {
	if in == nil {
		return nil
	}
	out := make([]Instrument, len(in))
	copy(out, in)
	return out
}

// -----------------------------------------------------------------------------
// Ticker Types
// -----------------------------------------------------------------------------

// TickerEntry is one instrument's price record in the feed's raw shape.
type TickerEntry struct {
	ClosingPrice     string // closing_price
	FluctateRate24H  string // fluctate_rate_24H (percent)
	AccTradeValue24H string // acc_trade_value_24H (quote currency)
}

// TickerSnapshot is a full point-in-time read of the ticker feed.
type TickerSnapshot struct {
	Entries   map[string]TickerEntry
	FetchedAt time.Time
}

// Lookup returns the entry for code.
func (s TickerSnapshot) Lookup(code string) (TickerEntry, bool) {
	e, ok := s.Entries[code]
	return e, ok
}

// Len returns the number of instruments covered by the snapshot.
func (s TickerSnapshot) Len() int {
	return len(s.Entries)
}

// IsZero reports whether the snapshot holds no data at all.
func (s TickerSnapshot) IsZero() bool {
	return s.Entries == nil && s.FetchedAt.IsZero()
}

// -----------------------------------------------------------------------------
// Highlight Types
// -----------------------------------------------------------------------------

// Direction of a transient price highlight.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// MarshalText encodes the direction as its name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name. Unknown names decode to none.
func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "up":
		*d = DirectionUp
	case "down":
		*d = DirectionDown
	default:
		*d = DirectionNone
	}
	return nil
}

// HighlightState is the flash state of one instrument.
type HighlightState struct {
	Direction Direction
	ExpiresAt time.Time // Zero when Direction is none
}

// Active reports whether a flash is showing.
func (h HighlightState) Active() bool {
	return h.Direction != DirectionNone
}

// -----------------------------------------------------------------------------
// Render Types
// -----------------------------------------------------------------------------

// ChangeClass classifies the 24h change rate for coloring.
type ChangeClass string

const (
	ChangeRise ChangeClass = "rise"
	ChangeFall ChangeClass = "fall"
	ChangeEven ChangeClass = "even"
)

// ClassifyChange maps a change rate to its class. Only the sign matters.
func ClassifyChange(rate float64) ChangeClass {
	switch {
	case rate > 0:
		return ChangeRise
	case rate < 0:
		return ChangeFall
	default:
		return ChangeEven
	}
}

// RenderRecord is one row of the board, derived on every merge.
type RenderRecord struct {
	Code        string      `json:"code"`
	DisplayName string      `json:"displayName"`
	Price       string      `json:"price"`
	ChangeRate  float64     `json:"changeRate"`
	ChangeClass ChangeClass `json:"changeClass"`
	Volume      string      `json:"volume"`
	VolumeUnit  string      `json:"volumeUnit,omitempty"`
	RSI         string      `json:"rsi"`
	Liked       bool        `json:"liked"`
	Available   bool        `json:"available"`
	Highlight   Direction   `json:"highlight"`
}

// Board is the full view pushed to consumers.
type Board struct {
	SessionID   string         `json:"sessionId"`
	SortKey     string         `json:"sortKey"`
	Selected    string         `json:"selected,omitempty"`
	Records     []RenderRecord `json:"records"`
	SnapshotAt  time.Time      `json:"snapshotAt"`
	Stale       bool           `json:"stale"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Holding is the user's position in one instrument.
type Holding struct {
	Code       string          `json:"code"`
	Amount     decimal.Decimal `json:"amount"`
	TradePrice decimal.Decimal `json:"tradePrice"`
}

// Selection is the result of a user picking an instrument.
type Selection struct {
	Code    string   `json:"code"`
	Holding *Holding `json:"holding,omitempty"`
}
