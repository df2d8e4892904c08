package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/janneh/batteryctl-go/types"
	"github.com/janneh/batteryctl-go/types/maybe"
)

// Horizon is the assembled, price-bounded era sequence together with the
// parallel slot/solar arrays the optimizer consumes.
type Horizon struct {
	Eras     []types.ForecastEra
	Slots    []types.PriceSlot
	SolarKwh []float64 // aligned with Slots
}

func (h Horizon) TotalHours() float64 {
	total := 0.0
	for _, slot := range h.Slots {
		total += slot.DurationHours
	}
	return total
}

// Assembler merges normalized slots from independent providers into one
// ordered era sequence keyed by slot start. Provenance is additive: adding
// data for a start that already has an era merges into it.
type Assembler struct {
	gridFee float64
	eras    map[time.Time]*types.ForecastEra
}

func NewAssembler(gridFeeEurPerKwh float64) *Assembler {
	return &Assembler{
		gridFee: gridFeeEurPerKwh,
		eras:    make(map[time.Time]*types.ForecastEra),
	}
}

// AddCostSlots attaches a cost source per slot. The era's canonical price
// follows whichever cost source was applied last, with the grid fee added
// on top for the fee-inclusive figure.
func (a *Assembler) AddCostSlots(provider string, slots []types.PriceSlot) {
	for _, slot := range slots {
		era := a.fetchOrCreate(slot.Start, slot.End)
		a.mergeSource(era, types.EraSource{
			Provider: provider,
			Type:     types.EraSourceCost,
			Payload: map[string]any{
				"price":          slot.Price,
				"price_with_fee": slot.Price + a.gridFee,
			},
		})
		era.Price = maybe.Some(slot.Price)
		era.PriceWithFee = maybe.Some(slot.Price + a.gridFee)
	}
}

// AddSolarSlots attaches each solar slot to the era it overlaps. An exact
// start match is preferred; otherwise any interval overlap counts. Slots
// overlapping no known era open a new (priceless) one.
func (a *Assembler) AddSolarSlots(provider string, slots []types.SolarSlot) {
	for _, slot := range slots {
		era, ok := a.eras[slot.Start.UTC()]
		if !ok {
			era = a.findOverlapping(slot.Start.UTC(), slot.End.UTC())
		}
		if era == nil {
			era = a.fetchOrCreate(slot.Start, slot.End)
		}

		avgPowerW := 0.0
		if era.DurationHours > 0 {
			avgPowerW = slot.EnergyKwh / era.DurationHours * 1000.0
		}
		a.mergeSource(era, types.EraSource{
			Provider: provider,
			Type:     types.EraSourceSolar,
			Payload: map[string]any{
				"energy_kwh":  slot.EnergyKwh,
				"avg_power_w": avgPowerW,
			},
		})
		era.SolarKwh = maybe.Some(slot.EnergyKwh)
		era.SolarAvgW = maybe.Some(avgPowerW)
	}
}

// AddEras re-ingests already-assembled eras. Feeding an assembler's own
// output back through this is a no-op: same era count, same prices, same
// provenance.
func (a *Assembler) AddEras(eras []types.ForecastEra) {
	for _, in := range eras {
		era := a.fetchOrCreate(in.Start, in.End)
		if era.EraId == "" {
			era.EraId = in.EraId
		}
		for _, src := range in.Sources {
			a.mergeSource(era, src)
		}
		if in.Price.IsValid() {
			era.Price = in.Price
			era.PriceWithFee = maybe.Some(in.Price.Value() + a.gridFee)
		}
		if in.SolarKwh.IsValid() {
			era.SolarKwh = in.SolarKwh
			era.SolarAvgW = in.SolarAvgW
		}
	}
}

// Horizon orders the eras, deduplicates by start and truncates at the
// first era without a resolvable price. Later eras are discarded even when
// they carry valid solar data: the optimizer never runs against unknown
// future prices.
func (a *Assembler) Horizon() Horizon {
	ordered := make([]*types.ForecastEra, 0, len(a.eras))
	for _, era := range a.eras {
		ordered = append(ordered, era)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	var h Horizon
	for _, era := range ordered {
		if !era.Price.IsValid() {
			break
		}
		if era.EraId == "" {
			era.EraId = eraId(era.Start)
		}
		h.Eras = append(h.Eras, *era)
		h.Slots = append(h.Slots, types.PriceSlot{
			Start:         era.Start,
			End:           era.End,
			DurationHours: era.DurationHours,
			Price:         era.Price.Value(),
			EraId:         era.EraId,
		})
		h.SolarKwh = append(h.SolarKwh, era.SolarKwh.ValueOrDefault(0))
	}

	return h
}

// Map keys are normalized to UTC so the same instant from different
// providers lands on the same era.
func (a *Assembler) fetchOrCreate(start, end time.Time) *types.ForecastEra {
	start, end = start.UTC(), end.UTC()
	if era, ok := a.eras[start]; ok {
		return era
	}
	era := &types.ForecastEra{
		EraId:         eraId(start),
		Start:         start,
		End:           end,
		DurationHours: end.Sub(start).Hours(),
	}
	a.eras[start] = era
	return era
}

// mergeSource keeps provenance additive and idempotent: a source already
// present for a provider+type is only replaced by a complete one.
func (a *Assembler) mergeSource(era *types.ForecastEra, src types.EraSource) {
	for i, existing := range era.Sources {
		if existing.Provider == src.Provider && existing.Type == src.Type {
			if sourceComplete(src) {
				era.Sources[i] = src
			}
			return
		}
	}
	era.Sources = append(era.Sources, src)
}

func sourceComplete(src types.EraSource) bool {
	if src.Payload == nil {
		return false
	}
	switch src.Type {
	case types.EraSourceCost:
		_, ok := src.Payload["price"]
		return ok
	case types.EraSourceSolar:
		_, ok := src.Payload["energy_kwh"]
		return ok
	default:
		return false
	}
}

func (a *Assembler) findOverlapping(start, end time.Time) *types.ForecastEra {
	for _, era := range a.eras {
		if start.Before(era.End) && end.After(era.Start) {
			return era
		}
	}
	return nil
}

func eraId(start time.Time) string {
	return fmt.Sprintf("era-%s", start.UTC().Format("20060102T1504Z0700"))
}
