package forecast

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/janneh/batteryctl-go/hours"
	"github.com/janneh/batteryctl-go/types"
)

// RawPriceRecord is one price record as delivered by a provider, before any
// validation. Timestamp and price fields are `any` because providers encode
// them as ISO strings, epoch seconds, epoch milliseconds or native values.
type RawPriceRecord struct {
	Start           any
	End             any
	Price           any
	Unit            string
	Value           any
	ValueUnit       string
	DurationHours   *float64
	DurationMinutes *float64
}

// RawSolarRecord is one solar production record before validation. Energy is
// either explicit (kWh or Wh) or derived from an instantaneous power sample.
type RawSolarRecord struct {
	Start           any
	End             any
	EnergyKwh       *float64
	EnergyWh        *float64
	Value           any // instantaneous power, W or kW (auto-scaled)
	DurationHours   *float64
	DurationMinutes *float64
}

// NormalizePriceSlots converts raw provider records into canonical slots.
// Records with unparseable timestamps or without a resolvable numeric price
// are dropped silently. Among records sharing a start the lower-priced one
// wins. The result is sorted ascending by start.
func NormalizePriceSlots(raw []RawPriceRecord) []types.PriceSlot {
	slotsByStart := make(map[time.Time]types.PriceSlot)

	for _, entry := range raw {
		start, ok := hours.Parse(entry.Start)
		if !ok {
			continue
		}
		price, ok := normalizePriceValue(entry.Price, entry.Unit)
		if !ok {
			price, ok = normalizePriceValue(entry.Value, entry.ValueUnit)
		}
		if !ok {
			continue
		}

		end := resolveEnd(start, entry.End, entry.DurationHours, entry.DurationMinutes)

		slot := types.PriceSlot{
			Start:         start,
			End:           end,
			DurationHours: hours.DurationHours(start, end),
			Price:         price,
		}

		existing, exists := slotsByStart[start]
		if !exists || slot.Price < existing.Price {
			slotsByStart[start] = slot
		}
	}

	slots := make([]types.PriceSlot, 0, len(slotsByStart))
	for _, slot := range slotsByStart {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	return slots
}

// NormalizeSolarSlots converts raw solar records into canonical slots,
// dropping anything without a usable timestamp or a positive energy figure.
func NormalizeSolarSlots(raw []RawSolarRecord) []types.SolarSlot {
	slotsByStart := make(map[time.Time]types.SolarSlot)

	for _, entry := range raw {
		start, ok := hours.Parse(entry.Start)
		if !ok {
			continue
		}
		end := resolveEnd(start, entry.End, entry.DurationHours, entry.DurationMinutes)
		duration := hours.DurationHours(start, end)

		energy, ok := resolveSolarEnergy(entry, duration)
		if !ok || energy <= 0 {
			continue
		}

		slotsByStart[start] = types.SolarSlot{
			Start:     start,
			End:       end,
			EnergyKwh: energy,
		}
	}

	slots := make([]types.SolarSlot, 0, len(slotsByStart))
	for _, slot := range slotsByStart {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	return slots
}

// resolveEnd derives a usable slot end: explicit end, else duration, else
// one hour. An end at or before start is corrected to start + one hour.
func resolveEnd(start time.Time, rawEnd any, durationHours, durationMinutes *float64) time.Time {
	end, ok := hours.Parse(rawEnd)
	if !ok {
		switch {
		case durationHours != nil:
			end = start.Add(time.Duration(*durationHours * float64(time.Hour)))
		case durationMinutes != nil:
			end = start.Add(time.Duration(*durationMinutes * float64(time.Minute)))
		default:
			end = start.Add(time.Hour)
		}
	}
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	return end
}

// normalizePriceValue converts a raw price into EUR/kWh. Units are matched
// case-insensitively by substring. An unmarked price above 10 in magnitude
// is assumed to be cents.
func normalizePriceValue(value any, unit string) (float64, bool) {
	price, ok := toFloat(value)
	if !ok {
		return 0, false
	}

	u := strings.ToLower(unit)
	switch {
	case u == "":
		if math.Abs(price) > 10 {
			return price / 100.0, true
		}
		return price, true
	case strings.Contains(u, "mwh"):
		return price / 1000.0, true
	case strings.Contains(u, "ct/wh"):
		return price * 10.0, true
	case strings.Contains(u, "ct") || strings.Contains(u, "cent"):
		return price / 100.0, true
	default:
		// EUR/kWh and anything unrecognised pass through unchanged
		return price, true
	}
}

// resolveSolarEnergy reads explicit energy or derives it from a power
// sample. Power values above 100 are taken to be watts, smaller values kW.
func resolveSolarEnergy(entry RawSolarRecord, durationHours float64) (float64, bool) {
	if entry.EnergyKwh != nil {
		return *entry.EnergyKwh, true
	}
	if entry.EnergyWh != nil {
		return *entry.EnergyWh / 1000.0, true
	}

	power, ok := toFloat(entry.Value)
	if !ok {
		return 0, false
	}
	if math.Abs(power) > 100 {
		power /= 1000.0 // W -> kW
	}
	return power * durationHours, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
