package optimize

import (
	"math"
	"testing"
	"time"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/forecast"
	"github.com/janneh/batteryctl-go/types"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func hourlySlots(start time.Time, prices []float64) []types.PriceSlot {
	slots := make([]types.PriceSlot, len(prices))
	for i, price := range prices {
		slots[i] = types.PriceSlot{
			Start:         start.Add(time.Duration(i) * time.Hour),
			End:           start.Add(time.Duration(i+1) * time.Hour),
			DurationHours: 1.0,
			Price:         price,
			EraId:         "era-test",
		}
	}
	return slots
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestSimulateChargesAheadOfPriceSpike(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	out, err := Simulate(Input{
		Battery: Battery{
			AppConfigBattery: config.AppConfigBattery{
				CapacityKwh:     12,
				MaxChargePowerW: 3500,
				FloorSocPercent: floatPtr(10),
			},
			CurrentSoc: 40,
		},
		HouseLoadW: 1500,
		Slots:      hourlySlots(start, []float64{0.08, 0.38}),
		SolarKwh:   []float64{0, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.OracleEntries) != 2 {
		t.Fatalf("expected 2 oracle entries, got %d", len(out.OracleEntries))
	}

	first := out.OracleEntries[0]
	if first.Strategy != StrategyCharge.String() {
		t.Errorf("expected charge strategy in the cheap slot, got %q", first.Strategy)
	}
	if first.EndSocPercent <= first.StartSocPercent {
		t.Errorf("expected SOC to rise during the cheap slot, got %f -> %f", first.StartSocPercent, first.EndSocPercent)
	}
	if first.GridPowerW <= 0 {
		t.Errorf("expected grid import while charging, got %f W", first.GridPowerW)
	}

	if out.RecommendedSocPercent != 100 {
		t.Errorf("expected a full-charge recommendation when grid charging pays off, got %f", out.RecommendedSocPercent)
	}
	if out.ProjectedCostEur >= out.BaselineCostEur {
		t.Errorf("optimized cost %f should undercut baseline %f", out.ProjectedCostEur, out.BaselineCostEur)
	}
}

func TestSimulateSolarChargingStaysAuto(t *testing.T) {
	start := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	out, err := Simulate(Input{
		Battery: Battery{
			AppConfigBattery: config.AppConfigBattery{
				CapacityKwh:     12,
				MaxChargePowerW: 0,
			},
			CurrentSoc: 80,
		},
		HouseLoadW:     1500,
		DirectUseRatio: 0.2,
		Slots:          hourlySlots(start, []float64{0.32, 0.35}),
		SolarKwh:       []float64{1.8, 0.2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := out.OracleEntries[0]
	if first.Strategy != StrategyAuto.String() {
		t.Errorf("solar-funded charging must stay auto, got %q", first.Strategy)
	}
	if first.GridPowerW > 0 {
		t.Errorf("with a solar surplus the slot must not import, got %f W", first.GridPowerW)
	}
	if out.NextStepSocPercent != first.EndSocPercent {
		t.Errorf("next step SOC %f should match the first entry's end SOC %f", out.NextStepSocPercent, first.EndSocPercent)
	}
}

func TestSimulateBounds(t *testing.T) {
	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	for _, soc := range []float64{-5, 0, 33.4, 100, 120} {
		out, err := Simulate(Input{
			Battery: Battery{
				AppConfigBattery: config.AppConfigBattery{
					CapacityKwh:     10,
					MaxChargePowerW: 2000,
				},
				CurrentSoc: soc,
			},
			HouseLoadW: 800,
			Slots:      hourlySlots(start, []float64{0.25, 0.1, 0.4}),
			SolarKwh:   []float64{0, 0.5, 1.2},
		})
		if err != nil {
			t.Fatalf("soc %f: unexpected error: %v", soc, err)
		}

		for _, v := range []float64{out.InitialSocPercent, out.NextStepSocPercent, out.RecommendedSocPercent} {
			if v < 0 || v > 100 {
				t.Errorf("soc %f: result SOC %f out of range", soc, v)
			}
		}
		if len(out.OracleEntries) != 3 {
			t.Errorf("soc %f: expected one oracle entry per slot, got %d", soc, len(out.OracleEntries))
		}
		for i, entry := range out.OracleEntries {
			wantEnergy := entry.GridPowerW / 1000.0 * entry.DurationHours
			if !almostEqual(entry.GridEnergyKwh, wantEnergy, 1e-6) {
				t.Errorf("soc %f entry %d: energy %f does not match power %f W over %f h", soc, i, entry.GridEnergyKwh, entry.GridPowerW, entry.DurationHours)
			}
		}
	}
}

func TestSimulateNormalizedPriceRoundTrip(t *testing.T) {
	slots := forecast.NormalizePriceSlots([]forecast.RawPriceRecord{
		{Start: "2026-08-28T10:00:00Z", Price: 18.786, Unit: "ct/kWh"},
	})
	if len(slots) != 1 {
		t.Fatalf("expected one normalized slot, got %d", len(slots))
	}
	if slots[0].Price != 0.18786 {
		t.Fatalf("expected 0.18786 EUR/kWh, got %v", slots[0].Price)
	}

	out, err := Simulate(Input{
		Battery: Battery{
			AppConfigBattery: config.AppConfigBattery{CapacityKwh: 10, MaxChargePowerW: 2000},
			CurrentSoc:       50,
		},
		HouseLoadW: 1000,
		Slots:      slots,
		SolarKwh:   []float64{0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OracleEntries[0].PriceEurPerKwh != 0.18786 {
		t.Errorf("price drifted through the optimizer: got %v", out.OracleEntries[0].PriceEurPerKwh)
	}
}

func TestSimulateRejectsBadInput(t *testing.T) {
	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	if _, err := Simulate(Input{
		Battery: Battery{AppConfigBattery: config.AppConfigBattery{CapacityKwh: 10}},
	}); err == nil {
		t.Error("expected an error for an empty horizon")
	}

	if _, err := Simulate(Input{
		Battery: Battery{AppConfigBattery: config.AppConfigBattery{CapacityKwh: 0}},
		Slots:   hourlySlots(start, []float64{0.2}),
	}); err == nil {
		t.Error("expected an error for a missing battery capacity")
	}
}

func TestSimulateActiveControlSavings(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	out, err := Simulate(Input{
		Battery: Battery{
			AppConfigBattery: config.AppConfigBattery{
				CapacityKwh:     12,
				MaxChargePowerW: 3500,
			},
			CurrentSoc: 10,
		},
		HouseLoadW: 1500,
		Slots:      hourlySlots(start, []float64{0.05, 0.45, 0.45}),
		SolarKwh:   []float64{0, 0, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Without grid charging the battery is nearly empty and the expensive
	// slots pay full price, so active control must show a gain.
	if out.ActiveControlSavingsEur <= 0 {
		t.Errorf("expected positive active-control savings, got %f", out.ActiveControlSavingsEur)
	}
	if !almostEqual(out.ActiveControlSavingsEur, out.AutoOnlyCostEur-out.ProjectedCostEur, 1e-9) {
		t.Errorf("savings %f inconsistent with auto-only %f minus optimized %f", out.ActiveControlSavingsEur, out.AutoOnlyCostEur, out.ProjectedCostEur)
	}
}
