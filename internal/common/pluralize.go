// Package common — pluralize.go содержит склонение русских числительных
// и форматирование сумм для сообщений бота.
package common

import (
	"fmt"
	"math"
)

// PluralizePoints возвращает правильную форму слова «очко» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "очко" (1, 21, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "очка" (2, 3, 4, 22, ...)
//   - Остальные случаи → "очков" (0, 5-20, 25-30, 100, ...)
//
// Примеры:
//
//	PluralizePoints(1)  → "очко"
//	PluralizePoints(3)  → "очка"
//	PluralizePoints(11) → "очков"
func PluralizePoints(n int64) string {
	return pluralize(n, "очко", "очка", "очков")
}

// PluralizeRounds возвращает форму слова «раунд».
func PluralizeRounds(n int64) string {
	return pluralize(n, "раунд", "раунда", "раундов")
}

func pluralize(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatPoints форматирует сумму в строку вида "1 500 очков".
func FormatPoints(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizePoints(amount))
}

// FormatSignedPoints создаёт строку вида "+100 очков" или "-50 очков".
func FormatSignedPoints(amount int64) string {
	if amount >= 0 {
		return "+" + FormatPoints(amount)
	}
	return FormatPoints(amount)
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
