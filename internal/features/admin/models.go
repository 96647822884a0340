// Package admin управляет кошельками администраторов и их входом в DM-панель.
// models.go описывает кошелёк администратора и результаты операций.
package admin

import (
	"time"

	"github.com/rgndice/dicebot/internal/events"
)

// Wallet — кошелёк администратора в одном чате.
// Сразу после пополнения Points == потолок; между пополнениями только уменьшается.
type Wallet struct {
	AdminID    int64     `json:"admin_id"`
	ChatID     int64     `json:"chat_id"`
	Points     int64     `json:"points"`
	LastRefill time.Time `json:"last_refill"`
}

// Key — ключ кошелька администратора.
type Key struct {
	AdminID int64
	ChatID  int64
}

func (w *Wallet) key() Key {
	return Key{AdminID: w.AdminID, ChatID: w.ChatID}
}

func (w *Wallet) clone() *Wallet {
	cp := *w
	return &cp
}

// Adjustment — результат корректировки баланса игрока администратором.
type Adjustment struct {
	AdminID     int64 `json:"admin_id"`
	ChatID      int64 `json:"chat_id"`
	PlayerID    int64 `json:"player_id"`
	Requested   int64 `json:"requested"`
	Applied     int64 `json:"applied"`      // Фактическое изменение (отрицательное снятие ограничено балансом)
	AdminPoints int64 `json:"admin_points"` // Остаток в кошельке администратора
	PlayerMain  int64 `json:"player_main"`  // Основной баланс игрока после операции
}

// RefillReport — итог одного прохода пополнения.
type RefillReport struct {
	ChatID   int64     `json:"chat_id,omitempty"` // 0 — все чаты
	Ceiling  int64     `json:"ceiling"`
	Refilled int       `json:"refilled"`
	Failed   int       `json:"failed"`
	At       time.Time `json:"at"`
}

func (*RefillReport) Type() events.EventType { return events.AdminWalletsRefilled }
