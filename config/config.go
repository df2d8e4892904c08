package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/janneh/batteryctl-go/logging"
	"github.com/spf13/viper"
)

type AppConfigApi struct {
	Address string
	Port    int16
	// If not assigned, the server will serve embedded templates.
	// If assigned, the server will serve templates from the directory,
	// that must contain a "templates" subdirectory.
	// This is useful for development.
	WwwDir *string `mapstructure:"www_dir"`
}

type AppConfigDatabase struct {
	Path string
	// How many days history data should be stored before it gets purged
	DataRetentionDays *int `mapstructure:"data_retention_days"`
	// How many days daily backup files should be stored before they get deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetDataRetentionDays() int {
	if d.DataRetentionDays == nil {
		return 90
	}
	return *d.DataRetentionDays
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigBattery struct {
	CapacityKwh          float64  `mapstructure:"capacity_kwh"`             // Battery maximum capacity in kWh, must be > 0
	MaxChargePowerW      float64  `mapstructure:"max_charge_power_w"`       // Maximum grid-funded charge power in W
	FloorSocPercent      *float64 `mapstructure:"floor_soc_percent"`        // Never discharge below this level
	MaxSolarChargePowerW *float64 `mapstructure:"max_solar_charge_power_w"` // Dedicated solar charge power limit in W
	AutoModeFloorSoc     *int     `mapstructure:"auto_mode_floor_soc"`      // SOC floor commanded when reverting to auto
}

func (b AppConfigBattery) GetFloorSocPercent() float64 {
	if b.FloorSocPercent == nil {
		return 0
	}
	return *b.FloorSocPercent
}

func (b AppConfigBattery) GetAutoModeFloorSoc() int {
	if b.AutoModeFloorSoc == nil {
		return 5
	}
	return *b.AutoModeFloorSoc
}

type AppConfigPrice struct {
	GridFeeEurPerKwh      float64  `mapstructure:"grid_fee_eur_per_kwh"`       // Network tariff added on top of every spot price
	FeedInTariffEurPerKwh *float64 `mapstructure:"feed_in_tariff_eur_per_kwh"` // Credit per exported kWh
}

func (p AppConfigPrice) GetFeedInTariff() float64 {
	if p.FeedInTariffEurPerKwh == nil {
		return 0
	}
	return *p.FeedInTariffEurPerKwh
}

type AppConfigLogic struct {
	IntervalSeconds    int     `mapstructure:"interval_seconds"`     // Evaluation cadence
	MinHoldMinutes     int     `mapstructure:"min_hold_minutes"`     // Minimum time between actuator mode switches
	HouseLoadW         float64 `mapstructure:"house_load_w"`         // Assumed constant house load
	AllowBatteryExport bool    `mapstructure:"allow_battery_export"` // Allow discharging beyond the slot's own solar export
	DryRun             bool    `mapstructure:"dry_run"`              // Compute and persist but never write to the actuator
}

func (l AppConfigLogic) GetIntervalSeconds() int {
	if l.IntervalSeconds < 60 {
		return 300
	}
	return l.IntervalSeconds
}

func (l AppConfigLogic) Interval() time.Duration {
	return time.Duration(l.GetIntervalSeconds()) * time.Second
}

type AppConfigSolar struct {
	// Fraction of solar production assumed to serve house load directly
	// before any is offered to the battery, 0..1
	DirectUseRatio float64 `mapstructure:"direct_use_ratio"`
}

type AppConfigMarketData struct {
	Enabled  *bool    `mapstructure:"enabled"`
	Url      string   `mapstructure:"url"`
	Label    string   `mapstructure:"label"`
	MaxHours *float64 `mapstructure:"max_hours"`
}

func (m AppConfigMarketData) GetEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

func (m AppConfigMarketData) GetLabel() string {
	if m.Label == "" {
		return "market_data"
	}
	return m.Label
}

func (m AppConfigMarketData) GetMaxHours() float64 {
	if m.MaxHours == nil || *m.MaxHours <= 0 {
		return 72
	}
	return *m.MaxHours
}

type AppConfigEnergyManager struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseUrl string `mapstructure:"base_url"`
}

type AppConfigActuator struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string
	Port     int16
	Username string
	Password string
}

type AppConfigBacktest struct {
	WindowHours *int `mapstructure:"window_hours"`
}

func (b AppConfigBacktest) GetWindowHours() int {
	if b.WindowHours == nil || *b.WindowHours <= 0 {
		return 24
	}
	return *b.WindowHours
}

type AppConfigGui struct {
	// Timezone for displaying times in the GUI, default: UTC
	Timezone *string `mapstructure:"timezone"`
}

func (g AppConfigGui) GetTimezone() string {
	if g.Timezone == nil {
		return "UTC"
	}
	return *g.Timezone
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return "JSON"
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return "TEXT"
	}
	return "JSON"
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Api           AppConfigApi
	Database      AppConfigDatabase
	Battery       AppConfigBattery       `mapstructure:"battery"`
	Price         AppConfigPrice         `mapstructure:"price"`
	Logic         AppConfigLogic         `mapstructure:"logic"`
	Solar         AppConfigSolar         `mapstructure:"solar"`
	MarketData    AppConfigMarketData    `mapstructure:"market_data"`
	EnergyManager AppConfigEnergyManager `mapstructure:"energy_manager"`
	Actuator      AppConfigActuator      `mapstructure:"actuator"`
	Backtest      AppConfigBacktest      `mapstructure:"backtest"`
	Gui           AppConfigGui           `mapstructure:"gui"`
	Logging       AppConfigLogging       `mapstructure:"logging"`
}

func Load(path string) (*AppConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c AppConfig

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	if c.Battery.CapacityKwh <= 0 {
		return nil, fmt.Errorf("battery.capacity_kwh must be > 0")
	}
	if c.Solar.DirectUseRatio < 0 || c.Solar.DirectUseRatio > 1 {
		return nil, fmt.Errorf("solar.direct_use_ratio must be within [0,1]")
	}

	return &c, nil
}
