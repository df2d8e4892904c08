package calc

// ImportCost is the cost of buying kWh from the grid at the given spot
// price, with the grid fee added on top.
func ImportCost(kWh, price, gridFee float64) float64 {
	return kWh * (price + gridFee)
}

// ExportCredit is the credit for selling kWh to the grid at the feed-in
// tariff.
func ExportCredit(kWh, feedInTariff float64) float64 {
	return kWh * feedInTariff
}

// GridEnergyCost prices a slot's net grid energy: imports pay the
// fee-inclusive price, exports earn the feed-in tariff (a negative cost).
func GridEnergyCost(gridKWh, priceWithFee, feedInTariff float64) float64 {
	if gridKWh >= 0 {
		return gridKWh * priceWithFee
	}
	return gridKWh * feedInTariff
}
