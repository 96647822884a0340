// Package wallet ведёт кошельки игроков: основной баланс, реферальные
// и бонусные очки, счётчики ставок.
// models.go описывает структуры кошелька и результата списания.
package wallet

import "time"

// Key идентифицирует кошелёк: один игрок в одном чате.
type Key struct {
	PlayerID int64
	ChatID   int64
}

// Wallet — кошелёк игрока в конкретном чате.
// Все балансы никогда не опускаются ниже нуля.
type Wallet struct {
	PlayerID       int64     `db:"player_id" json:"player_id"`
	ChatID         int64     `db:"chat_id" json:"chat_id"`
	Username       string    `db:"username" json:"username,omitempty"`
	MainBalance    int64     `db:"main_balance" json:"main_balance"`       // Основной баланс, сюда идут выигрыши
	ReferralPoints int64     `db:"referral_points" json:"referral_points"` // Очки за приглашения
	BonusPoints    int64     `db:"bonus_points" json:"bonus_points"`       // Разовые бонусы
	TotalBets      int64     `db:"total_bets" json:"total_bets"`
	TotalWins      int64     `db:"total_wins" json:"total_wins"`
	TotalLosses    int64     `db:"total_losses" json:"total_losses"`
	WelcomeGranted bool      `db:"welcome_granted" json:"welcome_granted"` // Приветственный бонус уже выдан
	LastActive     time.Time `db:"last_active" json:"last_active"`
}

// Key возвращает ключ кошелька.
func (w *Wallet) Key() Key {
	return Key{PlayerID: w.PlayerID, ChatID: w.ChatID}
}

// Clone возвращает независимую копию кошелька.
func (w *Wallet) Clone() *Wallet {
	c := *w
	return &c
}

// Snapshot — публичный срез кошелька.
type Snapshot struct {
	MainBalance    int64 `json:"main_balance"`
	ReferralPoints int64 `json:"referral_points"`
	BonusPoints    int64 `json:"bonus_points"`
	TotalBets      int64 `json:"total_bets"`
	TotalWins      int64 `json:"total_wins"`
	TotalLosses    int64 `json:"total_losses"`
}

// Snapshot возвращает срез балансов и счётчиков.
func (w *Wallet) Snapshot() Snapshot {
	return Snapshot{
		MainBalance:    w.MainBalance,
		ReferralPoints: w.ReferralPoints,
		BonusPoints:    w.BonusPoints,
		TotalBets:      w.TotalBets,
		TotalWins:      w.TotalWins,
		TotalLosses:    w.TotalLosses,
	}
}

// Consumption — сколько каждой валюты ушло на одно списание.
type Consumption struct {
	Referral int64 `json:"referral"`
	Bonus    int64 `json:"bonus"`
	Main     int64 `json:"main"`
}

// Total возвращает полную сумму списания.
func (c Consumption) Total() int64 {
	return c.Referral + c.Bonus + c.Main
}

// Add складывает два списания (ставки одного игрока на одну категорию суммируются).
func (c Consumption) Add(o Consumption) Consumption {
	return Consumption{
		Referral: c.Referral + o.Referral,
		Bonus:    c.Bonus + o.Bonus,
		Main:     c.Main + o.Main,
	}
}
