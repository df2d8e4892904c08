package convert

import (
	"math"
)

func TwoDecimals(number float64) float64 {
	return RoundFloat64(number, 2)
}

func FourDecimals(number float64) float64 {
	return RoundFloat64(number, 4)
}

func RoundFloat64(number float64, decimals int) float64 {
	return math.Round(number*math.Pow10(int(decimals))) / math.Pow10(int(decimals))
}

func CentsToEur(cents float64) float64 {
	return cents / 100.0
}

func EurPerMwhToEurPerKwh(price float64) float64 {
	return price / 1000.0
}

func WhToKwh(wh float64) float64 {
	return wh / 1000.0
}

func WToKw(w float64) float64 {
	return w / 1000.0
}

func KwToW(kw float64) float64 {
	return kw * 1000.0
}
