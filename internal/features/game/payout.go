// Package game — payout.go классифицирует бросок и считает выплаты.
// Множители хранятся как decimal, поэтому floor(ставка × множитель) точен.
package game

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Multipliers — множитель выплаты для каждой категории.
type Multipliers map[Category]decimal.Decimal

// DefaultMultipliers — BIG 1.95, SMALL 1.95, LUCKY 4.5.
func DefaultMultipliers() Multipliers {
	return Multipliers{
		CategoryBig:   decimal.RequireFromString("1.95"),
		CategorySmall: decimal.RequireFromString("1.95"),
		CategoryLucky: decimal.RequireFromString("4.5"),
	}
}

// Classify определяет выигравшую категорию по сумме двух костей.
// 2–6 → SMALL, 7 → LUCKY, 8–12 → BIG.
func Classify(total int) (Category, error) {
	switch {
	case total >= 2 && total <= 6:
		return CategorySmall, nil
	case total == 7:
		return CategoryLucky, nil
	case total >= 8 && total <= 12:
		return CategoryBig, nil
	}
	return 0, fmt.Errorf("сумма %d вне диапазона 2–12", total)
}

// Payout возвращает floor(stake × multiplier).
func Payout(stake int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(stake).Mul(multiplier).Floor().IntPart()
}
