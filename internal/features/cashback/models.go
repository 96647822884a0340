// Package cashback возвращает игрокам часть проигранных за сутки ставок.
// Раз в день за вчерашний местный день суммируются проигравшие ставки
// каждого игрока в каждом чате, и процент от суммы зачисляется на основной баланс.
package cashback

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgndice/dicebot/internal/events"
)

// Loss — сумма проигранных ставок игрока в чате за период.
type Loss struct {
	PlayerID int64 `json:"player_id"`
	ChatID   int64 `json:"chat_id"`
	Amount   int64 `json:"amount"`
}

// Rules — параметры кэшбэка.
type Rules struct {
	Percent decimal.Decimal // Процент от проигрыша, 0 — кэшбэк выключен
	MinLoss int64           // Минимальный проигрыш за день для начисления
	Max     int64           // Потолок начисления одному игроку в чате, 0 — без потолка
}

// Enabled сообщает, начисляется ли кэшбэк вообще.
func (r Rules) Enabled() bool {
	return r.Percent.IsPositive()
}

// Amount считает кэшбэк для суммы проигрыша, дробная часть отбрасывается.
func (r Rules) Amount(loss int64) int64 {
	if !r.Enabled() || loss <= 0 || loss < r.MinLoss {
		return 0
	}
	amount := decimal.NewFromInt(loss).Mul(r.Percent).Div(decimal.NewFromInt(100)).Floor().IntPart()
	if r.Max > 0 && amount > r.Max {
		amount = r.Max
	}
	return amount
}

// Credit — начисление одному игроку.
type Credit struct {
	PlayerID int64 `json:"player_id"`
	ChatID   int64 `json:"chat_id"`
	Losses   int64 `json:"losses"`
	Amount   int64 `json:"amount"`
	Deferred bool  `json:"deferred,omitempty"` // Кошелёк не прочитан, зачисление отложено
}

// Report — итог одного прохода кэшбэка.
type Report struct {
	Day      string    `json:"day"` // Местная дата, за которую считались проигрыши
	Percent  string    `json:"percent"`
	Credits  []Credit  `json:"credits"`
	Total    int64     `json:"total"`
	Deferred int       `json:"deferred"`
	At       time.Time `json:"at"`
}

func (*Report) Type() events.EventType { return events.CashbackPaid }

// ForChat возвращает начисления одного чата.
func (r *Report) ForChat(chatID int64) []Credit {
	var out []Credit
	for _, c := range r.Credits {
		if c.ChatID == chatID {
			out = append(out, c)
		}
	}
	return out
}

// ChatIDs возвращает чаты с начислениями по возрастанию id.
func (r *Report) ChatIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, c := range r.Credits {
		if !seen[c.ChatID] {
			seen[c.ChatID] = true
			ids = append(ids, c.ChatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
