package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/janneh/batteryctl-go/backtest"
	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/convert"
	"github.com/janneh/batteryctl-go/database"
	"github.com/janneh/batteryctl-go/forecast"
	"github.com/janneh/batteryctl-go/optimize"
	"github.com/janneh/batteryctl-go/slice"
	"github.com/janneh/batteryctl-go/types"
	"github.com/janneh/batteryctl-go/types/maybe"
)

const historyTailSize = 48

// NewEvaluateTask builds the periodic evaluation run: gather forecasts and
// telemetry, assemble the horizon, optimize, estimate realized savings,
// persist the snapshot and finally push the result to the actuator. A run
// that overlaps a still-active one is dropped, the next scheduled trigger
// picks up again.
func NewEvaluateTask(
	logger *slog.Logger,
	db *database.Database,
	cnfg *config.AppConfig,
	market types.MarketSource,
	manager types.EnergyManagerSource,
	act types.Actuator,
	onSnapshot func(*types.SnapshotPayload),
) func() {
	var inProgress atomic.Bool

	return func() {
		if !inProgress.CompareAndSwap(false, true) {
			logger.Warn("previous evaluation still running, skipping this trigger")
			return
		}
		defer inProgress.Store(false)

		logger.Debug("running evaluation...")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		now := time.Now()
		snapshot := types.SnapshotPayload{
			Timestamp:       now,
			IntervalSeconds: cnfg.Logic.GetIntervalSeconds(),
			HouseLoadW:      cnfg.Logic.HouseLoadW,
			Warnings:        []string{},
			Errors:          []string{},
		}

		var marketSlots []types.PriceSlot
		if market != nil && cnfg.MarketData.GetEnabled() {
			slots, err := market.GetPriceSlots(ctx)
			if err != nil {
				logger.Warn("market data unavailable", slog.String("provider", market.Name()), slog.Any("error", err))
				snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("market data (%s): %v", market.Name(), err))
			} else {
				marketSlots = slots
			}
		}

		var managerState types.EnergyManagerState
		if manager != nil && cnfg.EnergyManager.Enabled {
			state, err := manager.GetState(ctx)
			if err != nil {
				logger.Warn("energy manager unavailable", slog.String("provider", manager.Name()), slog.Any("error", err))
				snapshot.Warnings = append(snapshot.Warnings, fmt.Sprintf("energy manager (%s): %v", manager.Name(), err))
			} else {
				managerState = state
			}
		}

		marketName := ""
		if market != nil {
			marketName = market.Name()
		}
		managerName := ""
		if manager != nil {
			managerName = manager.Name()
		}
		horizon := assembleForecast(cnfg.Price.GridFeeEurPerKwh, managerName, managerState, marketName, marketSlots)

		snapshot.Eras = horizon.Eras
		snapshot.ForecastHours = horizon.TotalHours()
		snapshot.ForecastSource = forecastSource(market, marketSlots, manager, managerState)
		snapshot.PriceSnapshotEurPerKwh = priceAt(horizon, now, managerState.Live, cnfg.Price.GridFeeEurPerKwh)

		liveSoc := managerState.Live.BatterySoc
		if !liveSoc.IsValid() {
			liveSoc = socFromPreviousRun(ctx, logger, db, now)
			if liveSoc.IsValid() {
				snapshot.Warnings = append(snapshot.Warnings, "live SOC unavailable, projected from previous run")
			}
		}
		if !liveSoc.IsValid() {
			abortRun(ctx, logger, db, &snapshot, onSnapshot, "no battery SOC available")
			return
		}
		snapshot.CurrentSocPercent = liveSoc.Value()

		recordHistory(ctx, logger, db, now, liveSoc.Value(), snapshot.PriceSnapshotEurPerKwh, managerState.Live)

		result, err := optimize.Simulate(optimize.Input{
			Battery: optimize.Battery{
				AppConfigBattery: cnfg.Battery,
				CurrentSoc:       liveSoc.Value(),
			},
			GridFeeEurPerKwh:      cnfg.Price.GridFeeEurPerKwh,
			FeedInTariffEurPerKwh: cnfg.Price.GetFeedInTariff(),
			HouseLoadW:            cnfg.Logic.HouseLoadW,
			DirectUseRatio:        cnfg.Solar.DirectUseRatio,
			AllowBatteryExport:    cnfg.Logic.AllowBatteryExport,
			Slots:                 horizon.Slots,
			SolarKwh:              horizon.SolarKwh,
		})
		if err != nil {
			abortRun(ctx, logger, db, &snapshot, onSnapshot, fmt.Sprintf("optimizer: %v", err))
			return
		}

		snapshot.NextStepSocPercent = result.NextStepSocPercent
		snapshot.RecommendedSocPercent = result.RecommendedSocPercent
		snapshot.ProjectedCostEur = convert.FourDecimals(result.ProjectedCostEur)
		snapshot.BaselineCostEur = convert.FourDecimals(result.BaselineCostEur)
		snapshot.AutoOnlyCostEur = convert.FourDecimals(result.AutoOnlyCostEur)
		snapshot.ProjectedSavingsEur = convert.FourDecimals(result.ProjectedSavingsEur)
		snapshot.ActiveControlSavingsEur = convert.FourDecimals(result.ActiveControlSavingsEur)
		snapshot.ProjectedGridEnergyKwh = convert.FourDecimals(result.ProjectedGridEnergyKwh)
		snapshot.OracleEntries = result.OracleEntries

		snapshot.Backtest = runBacktest(ctx, logger, db, cnfg, now)

		if act != nil && cnfg.Actuator.Enabled {
			if err := act.ApplyOptimization(ctx, &snapshot); err != nil {
				logger.Error("actuator error", slog.Any("error", err))
				snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("actuator: %v", err))
			}
		}

		persistSnapshot(ctx, logger, db, &snapshot, onSnapshot)

		logger.Info("evaluation done",
			slog.Float64("soc", snapshot.CurrentSocPercent),
			slog.Float64("recommendedSoc", snapshot.RecommendedSocPercent),
			slog.Float64("projectedCost", snapshot.ProjectedCostEur),
			slog.Float64("projectedSavings", snapshot.ProjectedSavingsEur),
			slog.Float64("forecastHours", snapshot.ForecastHours))
	}
}

// assembleForecast merges the provider forecasts into one horizon. The
// energy manager is the primary cost source and goes in first; the market
// feed is applied after it, so on slots both providers quote the market
// price is the canonical one.
func assembleForecast(gridFee float64, managerName string, state types.EnergyManagerState, marketName string, marketSlots []types.PriceSlot) forecast.Horizon {
	asm := forecast.NewAssembler(gridFee)
	if managerName != "" {
		asm.AddCostSlots(managerName, state.PriceSlots)
		asm.AddSolarSlots(managerName, state.SolarSlots)
	}
	if marketName != "" {
		asm.AddCostSlots(marketName, marketSlots)
	}
	return asm.Horizon()
}

// abortRun records a fatal condition. The snapshot is still persisted so
// the error is visible to the GUI, and the scheduled loop keeps running.
func abortRun(ctx context.Context, logger *slog.Logger, db *database.Database, snapshot *types.SnapshotPayload, onSnapshot func(*types.SnapshotPayload), msg string) {
	logger.Error("evaluation aborted", slog.String("reason", msg))
	snapshot.Errors = append(snapshot.Errors, msg)
	persistSnapshot(ctx, logger, db, snapshot, onSnapshot)
}

func persistSnapshot(ctx context.Context, logger *slog.Logger, db *database.Database, snapshot *types.SnapshotPayload, onSnapshot func(*types.SnapshotPayload)) {
	tail, err := db.GetHistoryTail(ctx, historyTailSize)
	if err != nil {
		logger.Warn("can't load history tail", slog.Any("error", err))
	} else {
		snapshot.HistoryTail = tail
	}

	if err := db.ReplaceSnapshot(ctx, *snapshot); err != nil {
		logger.Error("can't persist snapshot", slog.Any("error", err))
		return
	}

	if onSnapshot != nil {
		onSnapshot(snapshot)
	}
}

func recordHistory(ctx context.Context, logger *slog.Logger, db *database.Database, now time.Time, soc float64, price maybe.Maybe[float64], live types.LiveState) {
	err := db.AppendHistory(ctx, types.HistoryPoint{
		Timestamp:   now,
		SocPercent:  soc,
		Price:       price,
		GridPowerW:  live.GridPower,
		SolarPowerW: live.SolarPower,
	})
	if err != nil {
		logger.Warn("can't record history point", slog.Any("error", err))
	}
}

func runBacktest(ctx context.Context, logger *slog.Logger, db *database.Database, cnfg *config.AppConfig, now time.Time) *types.BacktestResult {
	windowHours := cnfg.Backtest.GetWindowHours()
	points, err := db.GetHistorySince(ctx, now.Add(-time.Duration(windowHours)*time.Hour))
	if err != nil {
		logger.Warn("can't load history for backtest", slog.Any("error", err))
		return nil
	}
	return backtest.Estimate(cnfg.Battery, cnfg.Price, float64(windowHours), now, points)
}

// socFromPreviousRun projects the battery SOC from the previous snapshot's
// trajectory: inside a planned slot the SOC is interpolated linearly, past
// the end of the plan the final SOC is assumed to have held.
func socFromPreviousRun(ctx context.Context, logger *slog.Logger, db *database.Database, now time.Time) maybe.Maybe[float64] {
	prev, err := db.GetLatestSnapshot(ctx)
	if err != nil {
		logger.Warn("can't load previous snapshot", slog.Any("error", err))
		return maybe.None[float64]()
	}
	if prev == nil || len(prev.OracleEntries) == 0 {
		return maybe.None[float64]()
	}

	entries := prev.OracleEntries
	if now.Before(entries[0].Start) {
		return maybe.Some(entries[0].StartSocPercent)
	}
	for _, entry := range entries {
		if !now.Before(entry.Start) && now.Before(entry.End) {
			progress := now.Sub(entry.Start).Hours() / entry.DurationHours
			soc := entry.StartSocPercent + (entry.EndSocPercent-entry.StartSocPercent)*progress
			return maybe.Some(soc)
		}
	}
	return maybe.Some(entries[len(entries)-1].EndSocPercent)
}

// priceAt resolves the fee-inclusive price in effect right now, preferring
// the assembled horizon over the energy manager's own tariff reading.
func priceAt(horizon forecast.Horizon, now time.Time, live types.LiveState, gridFee float64) maybe.Maybe[float64] {
	era, found := slice.Find(horizon.Eras, func(e types.ForecastEra) bool {
		return !now.Before(e.Start) && now.Before(e.End)
	})
	if found {
		return era.PriceWithFee
	}
	if live.TariffNow.IsValid() {
		return maybe.Some(live.TariffNow.Value() + gridFee)
	}
	return maybe.None[float64]()
}

func forecastSource(market types.MarketSource, marketSlots []types.PriceSlot, manager types.EnergyManagerSource, state types.EnergyManagerState) string {
	source := ""
	if market != nil && len(marketSlots) > 0 {
		source = market.Name()
	}
	if manager != nil && (len(state.PriceSlots) > 0 || len(state.SolarSlots) > 0) {
		if source != "" {
			source += "+"
		}
		source += manager.Name()
	}
	if source == "" {
		source = "none"
	}
	return source
}
