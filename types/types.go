package types

import (
	"time"

	"github.com/janneh/batteryctl-go/types/maybe"
)

// PriceSlot is one canonical forecast interval [Start, End) with the import
// price converted to EUR/kWh. Slots are kept sorted ascending by Start and
// there is never more than one slot per distinct Start.
type PriceSlot struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`
	Price         float64   `json:"price"` // EUR/kWh, excluding grid fee
	EraId         string    `json:"era_id,omitempty"`
}

// SolarSlot is one canonical solar production interval.
type SolarSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	EnergyKwh float64   `json:"energy_kwh"` // Always > 0, zero production slots are dropped
}

type EraSourceType string

const (
	EraSourceCost  EraSourceType = "cost"
	EraSourceSolar EraSourceType = "solar"
)

// EraSource records where a piece of era data came from.
type EraSource struct {
	Provider string         `json:"provider"`
	Type     EraSourceType  `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// ForecastEra is one forecast time slot after merging all provider data
// known for that slot. Provenance is additive: a new source for the same
// provider+type merges into the era instead of duplicating it.
type ForecastEra struct {
	EraId         string               `json:"era_id"`
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	DurationHours float64              `json:"duration_hours"`
	Price         maybe.Maybe[float64] `json:"price"`          // EUR/kWh, excluding grid fee
	PriceWithFee  maybe.Maybe[float64] `json:"price_with_fee"` // EUR/kWh, including grid fee
	SolarKwh      maybe.Maybe[float64] `json:"solar_kwh"`
	SolarAvgW     maybe.Maybe[float64] `json:"solar_avg_w"`
	Sources       []EraSource          `json:"sources"`
}

// LiveState is the most recent telemetry known when a run starts.
type LiveState struct {
	BatterySoc maybe.Maybe[float64] // percent, 0..100
	GridPower  maybe.Maybe[float64] // W, positive = import
	SolarPower maybe.Maybe[float64] // W
	TariffNow  maybe.Maybe[float64] // EUR/kWh, excluding grid fee
}

// OracleEntry is the optimizer's per-era recommendation.
type OracleEntry struct {
	EraId           string    `json:"era_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationHours   float64   `json:"duration_hours"`
	StartSocPercent float64   `json:"start_soc_percent"`
	EndSocPercent   float64   `json:"end_soc_percent"`
	GridPowerW      float64   `json:"grid_power_w"`
	GridEnergyKwh   float64   `json:"grid_energy_kwh"`
	PriceEurPerKwh  float64   `json:"price_eur_per_kwh"` // including grid fee
	Strategy        string    `json:"strategy"`          // "charge" or "auto"
}

// HistoryPoint is one persisted telemetry/outcome sample. Price is the
// fee-inclusive import price at capture time.
type HistoryPoint struct {
	Timestamp   time.Time            `json:"timestamp"`
	SocPercent  float64              `json:"soc_percent"`
	Price       maybe.Maybe[float64] `json:"price"`
	GridPowerW  maybe.Maybe[float64] `json:"grid_power_w"`
	SolarPowerW maybe.Maybe[float64] `json:"solar_power_w"`
}

// BacktestResult is the realized-savings report over a trailing window.
type BacktestResult struct {
	SavingsEur    float64   `json:"savings_eur"`
	ActualCostEur float64   `json:"actual_cost_eur"`
	DumbCostEur   float64   `json:"dumb_cost_eur"`
	IntervalCount int       `json:"interval_count"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
}

// SnapshotPayload is the output of one evaluation run. It fully replaces
// the previous snapshot, it is never partially updated.
type SnapshotPayload struct {
	Timestamp               time.Time            `json:"timestamp"`
	IntervalSeconds         int                  `json:"interval_seconds"`
	HouseLoadW              float64              `json:"house_load_w"`
	CurrentSocPercent       float64              `json:"current_soc_percent"`
	NextStepSocPercent      float64              `json:"next_step_soc_percent"`
	RecommendedSocPercent   float64              `json:"recommended_soc_percent"`
	PriceSnapshotEurPerKwh  maybe.Maybe[float64] `json:"price_snapshot_eur_per_kwh"`
	ProjectedCostEur        float64              `json:"projected_cost_eur"`
	BaselineCostEur         float64              `json:"baseline_cost_eur"`
	AutoOnlyCostEur         float64              `json:"auto_only_cost_eur"`
	ProjectedSavingsEur     float64              `json:"projected_savings_eur"`
	ActiveControlSavingsEur float64              `json:"active_control_savings_eur"`
	ProjectedGridEnergyKwh  float64              `json:"projected_grid_energy_kwh"`
	ForecastSource          string               `json:"forecast_source"`
	ForecastHours           float64              `json:"forecast_hours"`
	Eras                    []ForecastEra        `json:"eras"`
	OracleEntries           []OracleEntry        `json:"oracle_entries"`
	Backtest                *BacktestResult      `json:"backtest,omitempty"`
	Warnings                []string             `json:"warnings"`
	Errors                  []string             `json:"errors"`
	HistoryTail             []HistoryPoint       `json:"history_tail"`
}
