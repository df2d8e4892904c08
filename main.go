package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/janneh/batteryctl-go/actuator"
	"github.com/janneh/batteryctl-go/awattar"
	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/database"
	"github.com/janneh/batteryctl-go/evcc"
	"github.com/janneh/batteryctl-go/hours"
	"github.com/janneh/batteryctl-go/logging"
	"github.com/janneh/batteryctl-go/task"
	"github.com/janneh/batteryctl-go/types"
	"github.com/janneh/batteryctl-go/www"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := hours.SetGuiTimezone(cnfg.Gui.GetTimezone()); err != nil {
		panic(fmt.Sprintf("failed to set GUI timezone: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("batteryctl is starting...", slog.String("version", Version))

	db, err := database.New(ctx, cnfg.Database.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	var market types.MarketSource
	if cnfg.MarketData.GetEnabled() {
		market = awattar.New(cnfg.MarketData)
	}

	var manager types.EnergyManagerSource
	if cnfg.EnergyManager.Enabled {
		manager = evcc.New(cnfg.EnergyManager)
	}

	var act types.Actuator
	if cnfg.Actuator.Enabled {
		bridge := actuator.New(cnfg.Actuator, cnfg.Logic, cnfg.Battery)
		if isDevMode() {
			logger.Info("dev mode, skipping inverter connection")
		} else {
			if err := bridge.Connect(); err != nil {
				panic(fmt.Sprintf("inverter connection error: %v", err))
			}
			defer bridge.Disconnect()
			act = bridge
		}
	}

	server := www.StartServer(db, cnfg.Api)

	tasks := task.NewTasks(db, cnfg, market, manager, act, server.PushSnapshot)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()
		// Don't wait a full interval for the first plan
		go tasks.EvaluateTask()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("main context done")
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	server.Run(ctx)
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
