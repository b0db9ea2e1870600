package api

import (
	"strconv"
	"strings"

	"github.com/rickgao/coinboard/internal/model"
)

// ParseFloatOrZero parses s as a float, returning 0 for empty or invalid input.
func ParseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ToModel converts an APIInstrument to model.Instrument.
// The rsi field is passed through untouched; the catalog store normalizes it.
func (i *APIInstrument) ToModel() model.Instrument {
	inst := model.Instrument{
		Code:        strings.TrimSpace(i.CoinCode),
		EnglishName: i.EnglishName,
		KoreanName:  i.KoreanName,
		RSI:         i.RSI.String(),
	}
	if i.Like != nil {
		inst.Liked = *i.Like
	}
	return inst
}

// ToModel converts an APITicker to model.TickerEntry. Values stay in the
// feed's textual form; the merger parses them.
func (t *APITicker) ToModel() model.TickerEntry {
	return model.TickerEntry{
		ClosingPrice:     t.ClosingPrice.String(),
		FluctateRate24H:  t.FluctateRate24H.String(),
		AccTradeValue24H: t.AccTradeValue24H.String(),
	}
}
