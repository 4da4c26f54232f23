package utils

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept for rubles, TON and bonus points.
const MoneyPlaces = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns amount*rate rounded to money precision.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(rate))
}
