package optimize

import (
	"github.com/janneh/batteryctl-go/config"
)

// SocSteps is the SOC discretization: states 0..SocSteps, one per percent.
const SocSteps = 100

type Battery struct {
	config.AppConfigBattery
	CurrentSoc float64 // Current state of charge in percentage
}

// Returns the battery level in kWh for a given percentage
func (b Battery) ToKwh(percentage float64) float64 {
	return percentage / 100.0 * b.CapacityKwh
}

// Returns the battery level in percentage for a given kWh
func (b Battery) ToPercentage(kWh float64) float64 {
	return kWh / b.CapacityKwh * 100.0
}

// Energy held by one discrete SOC state step
func (b Battery) EnergyPerStep() float64 {
	return b.CapacityKwh / SocSteps
}

// The lowest state the optimizer may discharge into
func (b Battery) FloorState() int {
	floor := int(b.GetFloorSocPercent() + 0.5)
	if floor < 0 {
		return 0
	}
	if floor > SocSteps {
		return SocSteps
	}
	return floor
}
