package optimize

type Strategy int

const (
	StrategyAuto   Strategy = iota // Self-consumption, no grid-funded charging
	StrategyCharge                 // Pull grid energy beyond the slot baseline to raise SOC
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyCharge:
		return "charge"
	default:
		return "unknown"
	}
}
