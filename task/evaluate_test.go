package task

import (
	"testing"
	"time"

	"github.com/janneh/batteryctl-go/types"
)

func quote(start time.Time, price float64) types.PriceSlot {
	return types.PriceSlot{
		Start:         start,
		End:           start.Add(time.Hour),
		DurationHours: 1.0,
		Price:         price,
	}
}

func TestAssembleForecastMarketPriceWins(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	state := types.EnergyManagerState{
		PriceSlots: []types.PriceSlot{quote(start, 0.40)},
	}
	h := assembleForecast(0,
		"energy_manager", state,
		"market_data", []types.PriceSlot{quote(start, 0.10)})

	if len(h.Eras) != 1 {
		t.Fatalf("expected one merged era, got %d", len(h.Eras))
	}
	if got := h.Eras[0].Price.Value(); got != 0.10 {
		t.Errorf("expected the market quote 0.10 to be canonical, got %v", got)
	}
	if len(h.Eras[0].Sources) != 2 {
		t.Errorf("expected cost provenance from both providers, got %d", len(h.Eras[0].Sources))
	}
}

func TestAssembleForecastManagerOnly(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	state := types.EnergyManagerState{
		PriceSlots: []types.PriceSlot{quote(start, 0.28)},
		SolarSlots: []types.SolarSlot{
			{Start: start, End: start.Add(time.Hour), EnergyKwh: 1.1},
		},
	}
	h := assembleForecast(0.10, "energy_manager", state, "", nil)

	if len(h.Eras) != 1 {
		t.Fatalf("expected one era, got %d", len(h.Eras))
	}
	if got := h.Eras[0].Price.Value(); got != 0.28 {
		t.Errorf("price: got %v", got)
	}
	if got := h.Eras[0].PriceWithFee.Value(); got != 0.38 {
		t.Errorf("price with fee: got %v", got)
	}
	if h.SolarKwh[0] != 1.1 {
		t.Errorf("solar not attached: %v", h.SolarKwh)
	}
}
