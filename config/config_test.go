package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  address: "127.0.0.1"
  port: 8080
database:
  path: "/tmp/batteryctl.db"
battery:
  capacity_kwh: 12
  max_charge_power_w: 3500
  floor_soc_percent: 10
price:
  grid_fee_eur_per_kwh: 0.12
logic:
  interval_seconds: 300
  house_load_w: 1500
solar:
  direct_use_ratio: 0.2
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Battery.CapacityKwh != 12 {
		t.Errorf("capacity: %v", c.Battery.CapacityKwh)
	}
	if c.Battery.GetFloorSocPercent() != 10 {
		t.Errorf("floor soc: %v", c.Battery.GetFloorSocPercent())
	}
	if c.Price.GridFeeEurPerKwh != 0.12 {
		t.Errorf("grid fee: %v", c.Price.GridFeeEurPerKwh)
	}
	if c.Logic.Interval() != 5*time.Minute {
		t.Errorf("interval: %v", c.Logic.Interval())
	}
	if c.Solar.DirectUseRatio != 0.2 {
		t.Errorf("direct use ratio: %v", c.Solar.DirectUseRatio)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
battery:
  capacity_kwh: 10
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Battery.GetFloorSocPercent() != 0 {
		t.Errorf("default floor soc: %v", c.Battery.GetFloorSocPercent())
	}
	if c.Battery.GetAutoModeFloorSoc() != 5 {
		t.Errorf("default auto mode floor: %v", c.Battery.GetAutoModeFloorSoc())
	}
	if c.Price.GetFeedInTariff() != 0 {
		t.Errorf("default feed-in tariff: %v", c.Price.GetFeedInTariff())
	}
	if c.Logic.GetIntervalSeconds() != 300 {
		t.Errorf("default interval: %v", c.Logic.GetIntervalSeconds())
	}
	if !c.MarketData.GetEnabled() {
		t.Error("market data should default to enabled")
	}
	if c.MarketData.GetLabel() != "market_data" {
		t.Errorf("default market label: %v", c.MarketData.GetLabel())
	}
	if c.MarketData.GetMaxHours() != 72 {
		t.Errorf("default market horizon: %v", c.MarketData.GetMaxHours())
	}
	if c.Backtest.GetWindowHours() != 24 {
		t.Errorf("default backtest window: %v", c.Backtest.GetWindowHours())
	}
	if c.Gui.GetTimezone() != "UTC" {
		t.Errorf("default timezone: %v", c.Gui.GetTimezone())
	}
	if c.Database.GetDataRetentionDays() != 90 {
		t.Errorf("default retention: %v", c.Database.GetDataRetentionDays())
	}
}

func TestLoadRejectsMissingCapacity(t *testing.T) {
	path := writeConfig(t, `
battery:
  max_charge_power_w: 3500
`)

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a missing battery capacity")
	}
}

func TestLoadRejectsBadDirectUseRatio(t *testing.T) {
	path := writeConfig(t, `
battery:
  capacity_kwh: 10
solar:
  direct_use_ratio: 1.5
`)

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a direct use ratio above 1")
	}
}
