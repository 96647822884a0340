// Package wallet — ledger.go содержит чистые операции над одним кошельком.
// Порядок списания фиксирован: реферальные очки → бонусные → основной баланс.
// Выигрыши зачисляются только на основной баланс.
package wallet

import (
	"fmt"
	"time"

	"github.com/rgndice/dicebot/internal/common"
)

// AvailableToBet возвращает сумму, доступную для ставки.
func AvailableToBet(w *Wallet) int64 {
	return w.MainBalance + w.ReferralPoints + w.BonusPoints
}

// Debit списывает amount в порядке referral → bonus → main.
// Если денег не хватает, кошелёк не меняется и возвращается ErrInsufficientFunds.
func Debit(w *Wallet, amount int64, now time.Time) (Consumption, error) {
	if amount <= 0 {
		return Consumption{}, common.ErrInvalidAmount
	}
	if available := AvailableToBet(w); amount > available {
		return Consumption{}, fmt.Errorf("нужно %d, доступно %d: %w", amount, available, common.ErrInsufficientFunds)
	}

	var c Consumption
	rest := amount

	c.Referral = min(w.ReferralPoints, rest)
	rest -= c.Referral

	c.Bonus = min(w.BonusPoints, rest)
	rest -= c.Bonus

	c.Main = rest

	w.ReferralPoints -= c.Referral
	w.BonusPoints -= c.Bonus
	w.MainBalance -= c.Main
	w.LastActive = now
	return c, nil
}

// Credit зачисляет amount на основной баланс.
func Credit(w *Wallet, amount int64, now time.Time) {
	if amount <= 0 {
		return
	}
	w.MainBalance += amount
	w.LastActive = now
}

// CreditReferral зачисляет реферальные очки.
func CreditReferral(w *Wallet, amount int64, now time.Time) {
	if amount <= 0 {
		return
	}
	w.ReferralPoints += amount
	w.LastActive = now
}

// CreditBonus зачисляет бонусные очки.
func CreditBonus(w *Wallet, amount int64, now time.Time) {
	if amount <= 0 {
		return
	}
	w.BonusPoints += amount
	w.LastActive = now
}

// Refund возвращает каждую валюту туда, откуда она была списана.
func Refund(w *Wallet, c Consumption, now time.Time) {
	w.ReferralPoints += c.Referral
	w.BonusPoints += c.Bonus
	w.MainBalance += c.Main
	w.LastActive = now
}

// TakeMain снимает до amount с основного баланса и возвращает фактически снятое.
// Используется админской корректировкой, баланс не уходит в минус.
func TakeMain(w *Wallet, amount int64, now time.Time) int64 {
	taken := min(w.MainBalance, amount)
	if taken <= 0 {
		return 0
	}
	w.MainBalance -= taken
	w.LastActive = now
	return taken
}
