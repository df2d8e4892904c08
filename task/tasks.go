package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/database"
	"github.com/janneh/batteryctl-go/types"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	EvaluateTask    func()
	MaintenanceTask func()
}

func NewTasks(
	db *database.Database,
	cnfg *config.AppConfig,
	market types.MarketSource,
	manager types.EnergyManagerSource,
	act types.Actuator,
	onSnapshot func(*types.SnapshotPayload),
) *Tasks {
	logger := slog.Default().With("module", "tasks")
	return &Tasks{
		cron:            cron.New(),
		cnfg:            cnfg,
		EvaluateTask:    NewEvaluateTask(logger.With(slog.String("task", "evaluate")), db, cnfg, market, manager, act, onSnapshot),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(fmt.Sprintf("@every %ds", t.cnfg.Logic.GetIntervalSeconds()), t.EvaluateTask)
	if err != nil {
		panic(err)
	}
	_, err = t.cron.AddFunc("30 2 * * *", t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}
