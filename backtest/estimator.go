package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/janneh/batteryctl-go/calc"
	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/types"
)

// Estimate reports the realized savings of the controller over a trailing
// window of history samples, compared against a simulated "dumb" battery
// that only ever self-consumes: it charges from solar surplus and
// discharges to cover house load, with no awareness of prices.
//
// The estimate is best effort: it returns nil (not an error) when the
// battery capacity is unknown, fewer than two usable samples fall inside
// the window, or no valid interval can be formed between them.
func Estimate(battery config.AppConfigBattery, price config.AppConfigPrice, windowHours float64, now time.Time, points []types.HistoryPoint) *types.BacktestResult {
	if battery.CapacityKwh <= 0 {
		return nil
	}

	cutoff := now.Add(-time.Duration(windowHours * float64(time.Hour)))
	usable := make([]types.HistoryPoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if !p.GridPowerW.IsValid() || !p.Price.IsValid() {
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) < 2 {
		return nil
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].Timestamp.Before(usable[j].Timestamp) })

	feedIn := price.GetFeedInTariff()
	floorKwh := battery.GetFloorSocPercent() / 100.0 * battery.CapacityKwh
	simKwh := usable[0].SocPercent / 100.0 * battery.CapacityKwh

	result := types.BacktestResult{
		WindowStart: usable[0].Timestamp,
		WindowEnd:   usable[len(usable)-1].Timestamp,
	}

	for i := 1; i < len(usable); i++ {
		p0, p1 := usable[i-1], usable[i]
		dtHours := p1.Timestamp.Sub(p0.Timestamp).Hours()
		if dtHours <= 0 {
			continue
		}

		gridKw := p0.GridPowerW.Value() / 1000.0
		solarKw := p0.SolarPowerW.ValueOrDefault(0) / 1000.0
		battKw := (p1.SocPercent - p0.SocPercent) / 100.0 * battery.CapacityKwh / dtHours

		// Energy balance: whatever the grid and solar delivered that did
		// not go into the battery was consumed by the house.
		loadKw := gridKw + solarKw - battKw
		if loadKw < 0 {
			loadKw = 0
		}

		priceWithFee := p0.Price.Value()
		result.ActualCostEur += calc.GridEnergyCost(gridKw*dtHours, priceWithFee, feedIn)

		netKwh := (loadKw - solarKw) * dtHours
		dumbGridKwh := netKwh
		if netKwh < 0 {
			chargeKwh := -netKwh
			if battery.MaxSolarChargePowerW != nil {
				chargeKwh = math.Min(chargeKwh, *battery.MaxSolarChargePowerW/1000.0*dtHours)
			}
			chargeKwh = math.Min(chargeKwh, battery.CapacityKwh-simKwh)
			simKwh += chargeKwh
			dumbGridKwh = netKwh + chargeKwh
		} else {
			dischargeKwh := math.Min(netKwh, math.Max(simKwh-floorKwh, 0))
			simKwh -= dischargeKwh
			dumbGridKwh = netKwh - dischargeKwh
		}
		result.DumbCostEur += calc.GridEnergyCost(dumbGridKwh, priceWithFee, feedIn)

		result.IntervalCount++
	}

	if result.IntervalCount == 0 {
		return nil
	}

	result.SavingsEur = result.DumbCostEur - result.ActualCostEur
	return &result
}
