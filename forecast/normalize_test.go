package forecast

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestNormalizePriceSlotsCentsPerKwh(t *testing.T) {
	slots := NormalizePriceSlots([]RawPriceRecord{
		{Start: "2026-08-28T10:00:00Z", Price: 18.786, Unit: "ct/kWh"},
	})
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Price != 0.18786 {
		t.Errorf("expected 0.18786 EUR/kWh, got %v", slots[0].Price)
	}
}

func TestNormalizePriceSlotsUnits(t *testing.T) {
	tests := []struct {
		name  string
		price any
		unit  string
		want  float64
	}{
		{"eur per mwh", 82.5, "Eur/MWh", 0.0825},
		{"cents per wh", 0.03, "ct/Wh", 0.3},
		{"cents spelled out", 25.0, "cent/kWh", 0.25},
		{"unmarked small is eur", 0.31, "", 0.31},
		{"unmarked large is cents", 31.0, "", 0.31},
		{"unknown unit passes through", 0.22, "EUR/kWh", 0.22},
		{"string price", "0.18", "", 0.18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := NormalizePriceSlots([]RawPriceRecord{
				{Start: "2026-08-28T10:00:00Z", Price: tt.price, Unit: tt.unit},
			})
			if len(slots) != 1 {
				t.Fatalf("expected 1 slot, got %d", len(slots))
			}
			if !almostEqual(slots[0].Price, tt.want, 1e-9) {
				t.Errorf("got %v, want %v", slots[0].Price, tt.want)
			}
		})
	}
}

func TestNormalizePriceSlotsTimestampForms(t *testing.T) {
	want := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	starts := []any{
		"2026-08-28T10:00:00Z",
		int64(1787911200),    // epoch seconds
		int64(1787911200000), // epoch milliseconds
		want,
	}

	for _, start := range starts {
		slots := NormalizePriceSlots([]RawPriceRecord{{Start: start, Price: 0.2}})
		if len(slots) != 1 {
			t.Fatalf("start %v: expected 1 slot, got %d", start, len(slots))
		}
		if !slots[0].Start.Equal(want) {
			t.Errorf("start %v: got %v, want %v", start, slots[0].Start, want)
		}
	}
}

func TestNormalizePriceSlotsDropsMalformed(t *testing.T) {
	slots := NormalizePriceSlots([]RawPriceRecord{
		{Start: "not a timestamp", Price: 0.2},
		{Start: "2026-08-28T10:00:00Z", Price: "not a number"},
		{Start: "2026-08-28T11:00:00Z", Price: 0.3},
	})
	if len(slots) != 1 {
		t.Fatalf("expected only the valid record to survive, got %d slots", len(slots))
	}
	if slots[0].Price != 0.3 {
		t.Errorf("wrong survivor: %+v", slots[0])
	}
}

func TestNormalizePriceSlotsKeepsLowerPriceOnDuplicateStart(t *testing.T) {
	slots := NormalizePriceSlots([]RawPriceRecord{
		{Start: "2026-08-28T10:00:00Z", Price: 0.30},
		{Start: "2026-08-28T10:00:00Z", Price: 0.25},
		{Start: "2026-08-28T10:00:00Z", Price: 0.40},
	})
	if len(slots) != 1 {
		t.Fatalf("expected deduplication to one slot, got %d", len(slots))
	}
	if slots[0].Price != 0.25 {
		t.Errorf("expected the lower price to win, got %v", slots[0].Price)
	}
}

func TestNormalizePriceSlotsEndResolution(t *testing.T) {
	hours := 0.5
	minutes := 15.0

	tests := []struct {
		name   string
		record RawPriceRecord
		want   time.Duration
	}{
		{"explicit end", RawPriceRecord{Start: "2026-08-28T10:00:00Z", End: "2026-08-28T12:00:00Z", Price: 0.2}, 2 * time.Hour},
		{"duration hours", RawPriceRecord{Start: "2026-08-28T10:00:00Z", Price: 0.2, DurationHours: &hours}, 30 * time.Minute},
		{"duration minutes", RawPriceRecord{Start: "2026-08-28T10:00:00Z", Price: 0.2, DurationMinutes: &minutes}, 15 * time.Minute},
		{"no end defaults to one hour", RawPriceRecord{Start: "2026-08-28T10:00:00Z", Price: 0.2}, time.Hour},
		{"end before start corrected", RawPriceRecord{Start: "2026-08-28T10:00:00Z", End: "2026-08-28T09:00:00Z", Price: 0.2}, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := NormalizePriceSlots([]RawPriceRecord{tt.record})
			if len(slots) != 1 {
				t.Fatalf("expected 1 slot, got %d", len(slots))
			}
			if got := slots[0].End.Sub(slots[0].Start); got != tt.want {
				t.Errorf("got duration %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeSolarSlots(t *testing.T) {
	kwh := 1.5
	wh := 800.0

	slots := NormalizeSolarSlots([]RawSolarRecord{
		{Start: "2026-08-28T10:00:00Z", EnergyKwh: &kwh},
		{Start: "2026-08-28T11:00:00Z", EnergyWh: &wh},
		{Start: "2026-08-28T12:00:00Z", Value: 2500}, // watts over one hour
		{Start: "2026-08-28T13:00:00Z", Value: 3.0},  // kW over one hour
		{Start: "2026-08-28T14:00:00Z", Value: 0},    // dropped
		{Start: "garbage", Value: 1.0},               // dropped
	})

	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}

	want := []float64{1.5, 0.8, 2.5, 3.0}
	for i, w := range want {
		if !almostEqual(slots[i].EnergyKwh, w, 1e-9) {
			t.Errorf("slot %d: got %v kWh, want %v", i, slots[i].EnergyKwh, w)
		}
	}
}
