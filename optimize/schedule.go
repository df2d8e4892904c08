package optimize

import (
	"fmt"
	"math"

	"github.com/janneh/batteryctl-go/calc"
	"github.com/janneh/batteryctl-go/slice"
	"github.com/janneh/batteryctl-go/types"
)

const feasibilityEps = 1e-9

// Input carries everything one optimization run needs. Slots and SolarKwh
// are parallel arrays as produced by forecast.Assembler.Horizon.
type Input struct {
	Battery               Battery
	GridFeeEurPerKwh      float64
	FeedInTariffEurPerKwh float64
	HouseLoadW            float64
	DirectUseRatio        float64
	AllowBatteryExport    bool
	Slots                 []types.PriceSlot
	SolarKwh              []float64
}

// Output is the full optimization result, including the counterfactual
// costs the savings figures are derived from.
type Output struct {
	InitialSocPercent       float64
	NextStepSocPercent      float64
	RecommendedSocPercent   float64
	ProjectedCostEur        float64
	BaselineCostEur         float64
	AutoOnlyCostEur         float64
	ProjectedSavingsEur     float64
	ActiveControlSavingsEur float64
	ProjectedGridEnergyKwh  float64
	OracleEntries           []types.OracleEntry
}

// slotParams is the per-slot energy balance the transition model works on.
// All figures are kWh over the slot, except priceWithFee.
type slotParams struct {
	durationHours    float64
	gridChargeLimit  float64 // max energy pullable from grid into the battery
	solarChargeLimit float64 // max residual solar routable into the battery
	baselineGrid     float64 // net grid energy when the battery holds
	priceWithFee     float64
}

// Simulate runs the horizon optimizer: a backward dynamic program over
// discrete SOC states followed by a forward replay from the live SOC. A
// second, grid-charging-disabled pass provides the counterfactual an
// uncontrolled self-consumption battery would achieve.
func Simulate(in Input) (Output, error) {
	if len(in.Slots) == 0 {
		return Output{}, fmt.Errorf("empty forecast horizon")
	}
	if in.Battery.CapacityKwh <= 0 {
		return Output{}, fmt.Errorf("battery capacity must be positive, got %f", in.Battery.CapacityKwh)
	}

	startState := int(math.Round(clampSoc(in.Battery.CurrentSoc)))

	params := make([]slotParams, len(in.Slots))
	autoParams := make([]slotParams, len(in.Slots))
	for i := range in.Slots {
		params[i] = slotParamsFor(in, i, true)
		autoParams[i] = slotParamsFor(in, i, false)
	}

	policy := solve(in, params)
	main := replay(in, params, policy, startState)

	autoPolicy := solve(in, autoParams)
	auto := replay(in, autoParams, autoPolicy, startState)

	baselineCost := 0.0
	for _, p := range params {
		baselineCost += calc.GridEnergyCost(p.baselineGrid, p.priceWithFee, in.FeedInTariffEurPerKwh)
	}

	out := Output{
		InitialSocPercent:       float64(startState),
		NextStepSocPercent:      main.entries[0].EndSocPercent,
		ProjectedCostEur:        main.cost,
		BaselineCostEur:         baselineCost,
		AutoOnlyCostEur:         auto.cost,
		ProjectedSavingsEur:     baselineCost - main.cost,
		ActiveControlSavingsEur: auto.cost - main.cost,
		ProjectedGridEnergyKwh:  main.gridEnergy,
		OracleEntries:           main.entries,
	}

	out.RecommendedSocPercent = main.entries[len(main.entries)-1].EndSocPercent
	if slice.Any(main.entries, func(e types.OracleEntry) bool { return e.Strategy == StrategyCharge.String() }) {
		out.RecommendedSocPercent = SocSteps
	}

	return out, nil
}

// slotParamsFor derives the slot energy balance. Solar first covers the
// configured share of house load directly, the residual is available for
// charging. The grid charge limit is zeroed for the counterfactual pass.
func slotParamsFor(in Input, idx int, allowGridCharge bool) slotParams {
	slot := in.Slots[idx]
	d := slot.DurationHours

	solar := 0.0
	if idx < len(in.SolarKwh) {
		solar = in.SolarKwh[idx]
	}

	loadEnergy := in.HouseLoadW / 1000.0 * d
	directUse := math.Min(loadEnergy, in.DirectUseRatio*solar)
	residualSolar := solar - directUse

	gridChargeLimit := 0.0
	if allowGridCharge {
		gridChargeLimit = in.Battery.MaxChargePowerW / 1000.0 * d
	}
	solarChargeLimit := residualSolar
	if in.Battery.MaxSolarChargePowerW != nil {
		solarChargeLimit = math.Min(solarChargeLimit, *in.Battery.MaxSolarChargePowerW/1000.0*d)
	}

	return slotParams{
		durationHours:    d,
		gridChargeLimit:  gridChargeLimit,
		solarChargeLimit: solarChargeLimit,
		baselineGrid:     (loadEnergy - directUse) - residualSolar,
		priceWithFee:     slot.Price + in.GridFeeEurPerKwh,
	}
}

// transition computes the net grid energy for moving deltaSteps SOC states
// during a slot and whether that move is admissible.
func (in Input) transition(p slotParams, deltaSteps int) (gridEnergy float64, ok bool) {
	deltaEnergy := float64(deltaSteps) * in.Battery.EnergyPerStep()
	gridEnergy = p.baselineGrid + deltaEnergy

	if deltaSteps > 0 {
		if deltaEnergy > p.solarChargeLimit+p.gridChargeLimit+feasibilityEps {
			return 0, false
		}
		// Grid import beyond the hold baseline is attributed to charging
		// and must fit within the charger's grid limit.
		if gridEnergy > math.Max(p.baselineGrid, 0)+p.gridChargeLimit+feasibilityEps {
			return 0, false
		}
	}
	if deltaSteps < 0 && !in.AllowBatteryExport {
		// Discharging may reduce import to zero but never push net export
		// beyond what solar alone would have exported.
		if gridEnergy < math.Min(p.baselineGrid, 0)-feasibilityEps {
			return 0, false
		}
	}

	return gridEnergy, true
}

// solve fills the backward value table and returns the per-slot, per-state
// optimal next state.
func solve(in Input, params []slotParams) [][]int {
	n := len(params)
	step := in.Battery.EnergyPerStep()
	floorState := in.Battery.FloorState()

	// Terminal value: residual stored energy credited at the
	// duration-weighted average fee-inclusive price.
	totalHours, weightedPrice := 0.0, 0.0
	for _, p := range params {
		totalHours += p.durationHours
		weightedPrice += p.priceWithFee * p.durationHours
	}
	avgPrice := 0.0
	if totalHours > 0 {
		avgPrice = weightedPrice / totalHours
	}

	value := make([]float64, SocSteps+1)
	next := make([]float64, SocSteps+1)
	for s := 0; s <= SocSteps; s++ {
		value[s] = -avgPrice * float64(s) * step
	}

	policy := make([][]int, n)
	for idx := n - 1; idx >= 0; idx-- {
		p := params[idx]
		policy[idx] = make([]int, SocSteps+1)

		maxChargeSteps := int((p.gridChargeLimit+p.solarChargeLimit)/step + feasibilityEps)

		for state := 0; state <= SocSteps; state++ {
			down := state - floorState
			if down < 0 {
				down = 0
			}
			up := maxChargeSteps
			if state+up > SocSteps {
				up = SocSteps - state
			}

			best := math.Inf(1)
			bestNext := state
			for delta := -down; delta <= up; delta++ {
				gridEnergy, ok := in.transition(p, delta)
				if !ok {
					continue
				}
				cost := calc.GridEnergyCost(gridEnergy, p.priceWithFee, in.FeedInTariffEurPerKwh) + value[state+delta]
				if cost < best {
					best = cost
					bestNext = state + delta
				}
			}
			if math.IsInf(best, 1) {
				// Holding is always admissible, so this only guards against
				// future transition-rule changes.
				gridEnergy, _ := in.transition(p, 0)
				best = calc.GridEnergyCost(gridEnergy, p.priceWithFee, in.FeedInTariffEurPerKwh) + value[state]
			}

			next[state] = best
			policy[idx][state] = bestNext
		}
		value, next = next, value
	}

	return policy
}

type trajectory struct {
	cost       float64
	gridEnergy float64
	entries    []types.OracleEntry
}

// replay walks the optimal policy forward from the live SOC, accumulating
// realized cost and the per-era oracle entries.
func replay(in Input, params []slotParams, policy [][]int, startState int) trajectory {
	var t trajectory
	state := startState

	for idx, p := range params {
		nextState := policy[idx][state]
		deltaSteps := nextState - state
		gridEnergy, _ := in.transition(p, deltaSteps)

		strategy := StrategyAuto
		if nextState > state && gridEnergy > math.Max(p.baselineGrid, 0)+feasibilityEps {
			strategy = StrategyCharge
		}

		gridPowerW := 0.0
		if p.durationHours > 0 {
			gridPowerW = gridEnergy * 1000.0 / p.durationHours
		}

		slot := in.Slots[idx]
		t.entries = append(t.entries, types.OracleEntry{
			EraId:           slot.EraId,
			Start:           slot.Start,
			End:             slot.End,
			DurationHours:   p.durationHours,
			StartSocPercent: float64(state),
			EndSocPercent:   float64(nextState),
			GridPowerW:      gridPowerW,
			GridEnergyKwh:   gridEnergy,
			PriceEurPerKwh:  p.priceWithFee,
			Strategy:        strategy.String(),
		})

		t.cost += calc.GridEnergyCost(gridEnergy, p.priceWithFee, in.FeedInTariffEurPerKwh)
		t.gridEnergy += gridEnergy
		state = nextState
	}

	return t
}

func clampSoc(soc float64) float64 {
	if soc < 0 {
		return 0
	}
	if soc > SocSteps {
		return SocSteps
	}
	return soc
}
