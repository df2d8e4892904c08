// One-shot evaluation for debugging: fetches the configured providers,
// assembles the horizon and prints the optimizer result as JSON, without
// touching the database or the inverter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/janneh/batteryctl-go/awattar"
	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/evcc"
	"github.com/janneh/batteryctl-go/forecast"
	"github.com/janneh/batteryctl-go/optimize"
	"github.com/janneh/batteryctl-go/types"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	soc := flag.Float64("soc", -1, "override live SOC in percent")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.RFC3339,
	})))

	cnfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// The energy manager goes in first, the market feed after it: on slots
	// both providers quote, the market price is the canonical one.
	asm := forecast.NewAssembler(cnfg.Price.GridFeeEurPerKwh)

	var live types.LiveState
	if cnfg.EnergyManager.Enabled {
		manager := evcc.New(cnfg.EnergyManager)
		state, err := manager.GetState(ctx)
		if err != nil {
			slog.Warn("energy manager unavailable", slog.Any("error", err))
		} else {
			asm.AddCostSlots(manager.Name(), state.PriceSlots)
			asm.AddSolarSlots(manager.Name(), state.SolarSlots)
			live = state.Live
		}
	}

	if cnfg.MarketData.GetEnabled() {
		market := awattar.New(cnfg.MarketData)
		slots, err := market.GetPriceSlots(ctx)
		if err != nil {
			slog.Warn("market data unavailable", slog.Any("error", err))
		} else {
			asm.AddCostSlots(market.Name(), slots)
		}
	}

	currentSoc := *soc
	if currentSoc < 0 {
		if !live.BatterySoc.IsValid() {
			fail("no live SOC available, pass -soc")
		}
		currentSoc = live.BatterySoc.Value()
	}

	horizon := asm.Horizon()
	result, err := optimize.Simulate(optimize.Input{
		Battery: optimize.Battery{
			AppConfigBattery: cnfg.Battery,
			CurrentSoc:       currentSoc,
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
		fail("optimizer: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fail("encoding result: %v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
