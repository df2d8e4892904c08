package types

import (
	"context"
)

// MarketSource fetches raw day-ahead market price records.
type MarketSource interface {
	Name() string
	GetPriceSlots(ctx context.Context) ([]PriceSlot, error)
}

// EnergyManagerState is the validated state object from the on-site energy
// management system: live telemetry plus its embedded price/solar forecasts.
type EnergyManagerState struct {
	Live       LiveState
	PriceSlots []PriceSlot
	SolarSlots []SolarSlot
}

// EnergyManagerSource fetches the on-site energy management snapshot.
type EnergyManagerSource interface {
	Name() string
	GetState(ctx context.Context) (EnergyManagerState, error)
}

// Actuator applies an optimization result to the physical battery. Failures
// are reported back as a message, they never abort the schedule.
type Actuator interface {
	ApplyOptimization(ctx context.Context, snapshot *SnapshotPayload) error
}
