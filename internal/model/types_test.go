package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDirection_String(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{DirectionNone, "none"},
		{DirectionUp, "up"},
		{DirectionDown, "down"},
		{Direction(42), "none"},
	}

	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", int(tt.d), got, tt.want)
		}
	}
}

func TestDirection_TextRoundTrip(t *testing.T) {
	for _, d := range []Direction{DirectionNone, DirectionUp, DirectionDown} {
		b, err := d.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", d, err)
		}
		var got Direction
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != d {
			t.Errorf("round trip = %v, want %v", got, d)
		}
	}

	var d Direction = DirectionUp
	if err := d.UnmarshalText([]byte("sideways")); err != nil {
		t.Fatal(err)
	}
	if d != DirectionNone {
		t.Errorf("unknown name decoded to %v, want none", d)
	}
}

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		rate float64
		want ChangeClass
	}{
		{1.2, ChangeRise},
		{-0.01, ChangeFall},
		{0, ChangeEven},
	}

	for _, tt := range tests {
		if got := ClassifyChange(tt.rate); got != tt.want {
			t.Errorf("ClassifyChange(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestCloneInstruments(t *testing.T) {
	orig := []Instrument{{Code: "BTC"}, {Code: "ETH"}}
	cp := CloneInstruments(orig)
	cp[0].Code = "XRP"

	if orig[0].Code != "BTC" {
		t.Errorf("clone shares backing array: orig[0].Code = %q", orig[0].Code)
	}
	if CloneInstruments(nil) != nil {
		t.Error("CloneInstruments(nil) should be nil")
	}
}

func TestTickerSnapshot_Lookup(t *testing.T) {
	snap := TickerSnapshot{
		Entries:   map[string]TickerEntry{"BTC": {ClosingPrice: "50000000"}},
		FetchedAt: time.Now(),
	}

	if _, ok := snap.Lookup("ETH"); ok {
		t.Error("ETH should be missing")
	}
	e, ok := snap.Lookup("BTC")
	if !ok || e.ClosingPrice != "50000000" {
		t.Errorf("Lookup(BTC) = %+v, %v", e, ok)
	}
	if snap.Len() != 1 {
		t.Errorf("Len() = %d, want 1", snap.Len())
	}
	if snap.IsZero() {
		t.Error("populated snapshot reported zero")
	}
	if !(TickerSnapshot{}).IsZero() {
		t.Error("empty snapshot should be zero")
	}
}

func TestRenderRecord_JSON(t *testing.T) {
	r := RenderRecord{
		Code:        "BTC",
		DisplayName: "비트코인",
		Price:       "50000000",
		ChangeRate:  1.2,
		ChangeClass: ChangeRise,
		Volume:      "2.00",
		VolumeUnit:  VolumeUnitMillions,
		RSI:         "55.2",
		Available:   true,
		Highlight:   DirectionUp,
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["highlight"] != "up" {
		t.Errorf("highlight = %v, want \"up\"", m["highlight"])
	}
	if m["changeClass"] != "rise" {
		t.Errorf("changeClass = %v, want \"rise\"", m["changeClass"])
	}
}
