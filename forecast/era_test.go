package forecast

import (
	"testing"
	"time"

	"github.com/janneh/batteryctl-go/types"
)

func hourSlot(start time.Time, price float64) types.PriceSlot {
	return types.PriceSlot{
		Start:         start,
		End:           start.Add(time.Hour),
		DurationHours: 1.0,
		Price:         price,
	}
}

func TestAssemblerMergesCostAndSolar(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0.10)
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(start, 0.20)})
	asm.AddSolarSlots("energy_manager", []types.SolarSlot{
		{Start: start, End: start.Add(time.Hour), EnergyKwh: 1.2},
	})

	h := asm.Horizon()
	if len(h.Eras) != 1 {
		t.Fatalf("expected 1 era, got %d", len(h.Eras))
	}

	era := h.Eras[0]
	if !era.Price.IsValid() || era.Price.Value() != 0.20 {
		t.Errorf("price: %+v", era.Price)
	}
	if !era.PriceWithFee.IsValid() || era.PriceWithFee.Value() != 0.30 {
		t.Errorf("price with fee: %+v", era.PriceWithFee)
	}
	if !era.SolarKwh.IsValid() || era.SolarKwh.Value() != 1.2 {
		t.Errorf("solar: %+v", era.SolarKwh)
	}
	if len(era.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(era.Sources))
	}
	if len(h.Slots) != 1 || h.SolarKwh[0] != 1.2 {
		t.Errorf("parallel arrays: %+v / %+v", h.Slots, h.SolarKwh)
	}
}

func TestAssemblerLastCostSourceWins(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0)
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(start, 0.20)})
	asm.AddCostSlots("energy_manager", []types.PriceSlot{hourSlot(start, 0.26)})

	h := asm.Horizon()
	if len(h.Eras) != 1 {
		t.Fatalf("expected a single merged era, got %d", len(h.Eras))
	}
	if h.Eras[0].Price.Value() != 0.26 {
		t.Errorf("expected the later source's price, got %v", h.Eras[0].Price.Value())
	}
	if len(h.Eras[0].Sources) != 2 {
		t.Errorf("expected provenance from both sources, got %d", len(h.Eras[0].Sources))
	}
}

func TestAssemblerSameInstantDifferentZone(t *testing.T) {
	utc := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	cet := utc.In(time.FixedZone("CEST", 2*3600))

	asm := NewAssembler(0)
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(utc, 0.20)})
	asm.AddSolarSlots("energy_manager", []types.SolarSlot{
		{Start: cet, End: cet.Add(time.Hour), EnergyKwh: 0.9},
	})

	h := asm.Horizon()
	if len(h.Eras) != 1 {
		t.Fatalf("same instant must merge into one era, got %d", len(h.Eras))
	}
	if h.SolarKwh[0] != 0.9 {
		t.Errorf("solar lost in merge: %v", h.SolarKwh)
	}
}

func TestAssemblerSolarOverlapAttachment(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0)
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(start, 0.20)})
	// Solar slot offset by 15 minutes still overlaps the priced era.
	asm.AddSolarSlots("energy_manager", []types.SolarSlot{
		{Start: start.Add(15 * time.Minute), End: start.Add(45 * time.Minute), EnergyKwh: 0.5},
	})

	h := asm.Horizon()
	if len(h.Eras) != 1 {
		t.Fatalf("expected the solar slot to attach to the existing era, got %d eras", len(h.Eras))
	}
	if h.SolarKwh[0] != 0.5 {
		t.Errorf("solar not attached: %v", h.SolarKwh)
	}
}

func TestAssemblerTruncatesAtFirstPricelessEra(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0)
	asm.AddCostSlots("market_data", []types.PriceSlot{
		hourSlot(start, 0.20),
		hourSlot(start.Add(time.Hour), 0.25),
	})
	// Solar-only era in the middle of the priced ones, then another priced era.
	asm.AddSolarSlots("energy_manager", []types.SolarSlot{
		{Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour), EnergyKwh: 1.0},
	})
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(start.Add(3*time.Hour), 0.30)})

	h := asm.Horizon()
	if len(h.Slots) != 2 {
		t.Fatalf("expected truncation after the second era, got %d slots", len(h.Slots))
	}
	if h.Slots[1].Price != 0.25 {
		t.Errorf("unexpected final slot: %+v", h.Slots[1])
	}
}

func TestAssemblerIdempotentReingestion(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0.10)
	asm.AddCostSlots("market_data", []types.PriceSlot{
		hourSlot(start, 0.20),
		hourSlot(start.Add(time.Hour), 0.25),
	})
	asm.AddSolarSlots("energy_manager", []types.SolarSlot{
		{Start: start, End: start.Add(time.Hour), EnergyKwh: 1.2},
	})

	first := asm.Horizon()

	// Feeding the assembler's own output back must not change anything.
	asm.AddEras(first.Eras)
	second := asm.Horizon()

	if len(second.Eras) != len(first.Eras) {
		t.Fatalf("era count changed: %d -> %d", len(first.Eras), len(second.Eras))
	}
	for i := range first.Eras {
		a, b := first.Eras[i], second.Eras[i]
		if a.EraId != b.EraId {
			t.Errorf("era %d: id changed %q -> %q", i, a.EraId, b.EraId)
		}
		if a.Price != b.Price || a.PriceWithFee != b.PriceWithFee {
			t.Errorf("era %d: price changed", i)
		}
		if len(a.Sources) != len(b.Sources) {
			t.Errorf("era %d: provenance changed %d -> %d", i, len(a.Sources), len(b.Sources))
		}
	}
}

func TestEraIdFormat(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	asm := NewAssembler(0)
	asm.AddCostSlots("market_data", []types.PriceSlot{hourSlot(start, 0.2)})

	h := asm.Horizon()
	if h.Eras[0].EraId != "era-20260828T1000Z" {
		t.Errorf("unexpected era id: %q", h.Eras[0].EraId)
	}
}
