// Package merge joins the instrument catalog with a ticker snapshot into
// ordered render records.
package merge

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/coinboard/internal/api"
	"github.com/rickgao/coinboard/internal/model"
)

var million = decimal.NewFromInt(1_000_000)

// Merge returns one record per instrument, in catalog order. Instruments
// missing from the snapshot, or whose entry cannot be parsed, are rendered
// with the unavailable sentinel.
func Merge(instruments []model.Instrument, snapshot model.TickerSnapshot) []model.RenderRecord {
	records, _ := MergeReport(instruments, snapshot)
	return records
}

// MergeReport is Merge that also returns the per-record shape errors that
// caused an entry to degrade to the sentinel.
func MergeReport(instruments []model.Instrument, snapshot model.TickerSnapshot) ([]model.RenderRecord, []error) {
	records := make([]model.RenderRecord, 0, len(instruments))
	var errs []error

	for _, inst := range instruments {
		rec := base(inst)

		entry, ok := snapshot.Lookup(inst.Code)
		if !ok {
			records = append(records, unavailable(rec))
			continue
		}

		if err := fill(&rec, entry); err != nil {
			errs = append(errs, err)
			records = append(records, unavailable(rec))
			continue
		}
		records = append(records, rec)
	}

	return records, errs
}

func base(inst model.Instrument) model.RenderRecord {
	return model.RenderRecord{
		Code:        inst.Code,
		DisplayName: DisplayName(inst),
		RSI:         inst.RSI,
		Liked:       inst.Liked,
	}
}

func unavailable(rec model.RenderRecord) model.RenderRecord {
	rec.Price = model.Unavailable
	rec.ChangeRate = 0
	rec.ChangeClass = model.ChangeEven
	rec.Volume = model.Unavailable
	rec.VolumeUnit = ""
	rec.Available = false
	return rec
}

func fill(rec *model.RenderRecord, entry model.TickerEntry) error {
	// The price is validated but rendered as delivered.
	if _, err := parseDecimal(rec.Code, "closing_price", entry.ClosingPrice); err != nil {
		return err
	}
	rate, err := parseDecimal(rec.Code, "fluctate_rate_24H", entry.FluctateRate24H)
	if err != nil {
		return err
	}
	value, err := parseDecimal(rec.Code, "acc_trade_value_24H", entry.AccTradeValue24H)
	if err != nil {
		return err
	}

	rec.Price = strings.TrimSpace(entry.ClosingPrice)
	rec.ChangeRate = rate.InexactFloat64()
	rec.ChangeClass = model.ClassifyChange(rec.ChangeRate)
	rec.Volume = Volume(value)
	rec.VolumeUnit = model.VolumeUnitMillions
	rec.Available = true
	return nil
}

// Volume renders an accumulated trade value in millions with two decimals.
func Volume(value decimal.Decimal) string {
	return value.Div(million).StringFixed(2)
}

// DisplayName picks the localized name, falling back to the English name
// and then the code.
func DisplayName(inst model.Instrument) string {
	if name := strings.TrimSpace(inst.KoreanName); name != "" {
		return name
	}
	if name := strings.TrimSpace(inst.EnglishName); name != "" {
		return name
	}
	return inst.Code
}

func parseDecimal(code, field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, &api.DataShapeError{Field: code + "." + field, Reason: "missing"}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, &api.DataShapeError{Field: code + "." + field, Value: raw, Reason: "not numeric"}
	}
	return d, nil
}
