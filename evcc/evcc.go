package evcc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/forecast"
	"github.com/janneh/batteryctl-go/hours"
	"github.com/janneh/batteryctl-go/types"
	"github.com/janneh/batteryctl-go/types/maybe"
)

// Evcc reads the state endpoint of an evcc energy management installation:
// live telemetry plus the price and solar forecasts evcc already aggregates
// from its own tariff providers.
type Evcc struct {
	cnfg config.AppConfigEnergyManager
}

func New(cnfg config.AppConfigEnergyManager) Evcc {
	return Evcc{cnfg: cnfg}
}

func (e Evcc) Name() string {
	return "energy_manager"
}

func (e Evcc) GetState(ctx context.Context) (types.EnergyManagerState, error) {
	var state types.EnergyManagerState

	url := strings.TrimSuffix(e.cnfg.BaseUrl, "/") + "/api/state"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return state, fmt.Errorf("failed to create request: %w", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return state, fmt.Errorf("failed to fetch state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return state, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return state, fmt.Errorf("failed to decode response: %w", err)
	}

	return ParseState(root), nil
}

// ParseState extracts the canonical state from a decoded payload. Depending
// on the evcc version, fields live at the document root or under "result".
// Anything missing or malformed simply stays absent.
func ParseState(root map[string]any) types.EnergyManagerState {
	var state types.EnergyManagerState

	state.Live = types.LiveState{
		BatterySoc: lookupNumber(root, "batterySoc"),
		GridPower:  lookupNumber(root, "gridPower"),
		SolarPower: lookupNumber(root, "pvPower"),
		TariffNow:  lookupNumber(root, "tariffGrid"),
	}
	if !state.Live.GridPower.IsValid() {
		if grid, ok := lookupMap(root, "grid"); ok {
			state.Live.GridPower = lookupNumber(grid, "power")
		}
	}

	if fc, ok := lookupAny(root, "forecast"); ok {
		state.PriceSlots = parsePriceForecast(fc)
		state.SolarSlots = parseSolarForecast(fc)
	}

	return state
}

// parsePriceForecast accepts both forecast shapes: a bare array of rate
// records, or a map holding the array under "grid" or "price".
func parsePriceForecast(fc any) []types.PriceSlot {
	entries, ok := fc.([]any)
	if !ok {
		m, isMap := fc.(map[string]any)
		if !isMap {
			return nil
		}
		for _, key := range []string{"grid", "price"} {
			if arr, found := m[key].([]any); found {
				entries = arr
				break
			}
		}
	}

	var raw []forecast.RawPriceRecord
	for _, entry := range entries {
		rec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		raw = append(raw, forecast.RawPriceRecord{
			Start: firstOf(rec, "start", "from"),
			End:   firstOf(rec, "end", "to"),
			Price: firstOf(rec, "value", "price"),
		})
	}

	return forecast.NormalizePriceSlots(raw)
}

// parseSolarForecast reads the solar timeseries. Consecutive points define
// slot boundaries, so the last point only terminates the one before it.
func parseSolarForecast(fc any) []types.SolarSlot {
	m, ok := fc.(map[string]any)
	if !ok {
		return nil
	}

	series, ok := m["solar"].([]any)
	if !ok {
		solar, isMap := m["solar"].(map[string]any)
		if !isMap {
			return nil
		}
		series, ok = solar["timeseries"].([]any)
		if !ok {
			return nil
		}
	}

	type point struct {
		rec map[string]any
		ts  any
	}
	var points []point
	for _, entry := range series {
		rec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		ts := firstOf(rec, "ts", "timestamp", "start")
		if _, ok := hours.Parse(ts); !ok {
			continue
		}
		points = append(points, point{rec: rec, ts: ts})
	}

	var raw []forecast.RawSolarRecord
	for i := 0; i+1 < len(points); i++ {
		rec := forecast.RawSolarRecord{
			Start: points[i].ts,
			End:   points[i+1].ts,
		}
		if v, ok := numberOf(points[i].rec, "energy_kwh"); ok {
			rec.EnergyKwh = &v
		} else if v, ok := numberOf(points[i].rec, "energy_wh"); ok {
			rec.EnergyWh = &v
		} else {
			rec.Value = firstOf(points[i].rec, "val", "value")
		}
		raw = append(raw, rec)
	}

	return forecast.NormalizeSolarSlots(raw)
}

func lookupAny(root map[string]any, key string) (any, bool) {
	if v, ok := root[key]; ok {
		return v, true
	}
	for _, nested := range []string{"result", "site"} {
		if m, ok := root[nested].(map[string]any); ok {
			if v, ok := m[key]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

func lookupMap(root map[string]any, key string) (map[string]any, bool) {
	v, ok := lookupAny(root, key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func lookupNumber(root map[string]any, key string) maybe.Maybe[float64] {
	v, ok := lookupAny(root, key)
	if !ok {
		return maybe.None[float64]()
	}
	f, ok := toFloat(v)
	if !ok {
		return maybe.None[float64]()
	}
	return maybe.Some(f)
}

func firstOf(rec map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := rec[key]; ok {
			return v
		}
	}
	return nil
}

func numberOf(rec map[string]any, key string) (float64, bool) {
	v, ok := rec[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
