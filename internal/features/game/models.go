// Package game реализует раунды игры в кости для групповых чатов:
// машину состояний раунда, приём ставок, бросок и расчёт выплат.
// models.go описывает типы ставок, состояния, записи истории и итоги раунда.
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// Category — тип ставки. Закрытое перечисление: других значений не бывает.
type Category int

const (
	CategorySmall Category = iota + 1 // сумма 2–6
	CategoryLucky                     // сумма ровно 7
	CategoryBig                       // сумма 8–12
)

// Categories — все типы ставок в порядке отображения.
var Categories = []Category{CategoryBig, CategorySmall, CategoryLucky}

func (c Category) String() string {
	switch c {
	case CategorySmall:
		return "SMALL"
	case CategoryLucky:
		return "LUCKY"
	case CategoryBig:
		return "BIG"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Valid сообщает, является ли значение одним из трёх типов ставки.
func (c Category) Valid() bool {
	return c == CategorySmall || c == CategoryLucky || c == CategoryBig
}

// Emoji возвращает значок категории для сообщений.
func (c Category) Emoji() string {
	switch c {
	case CategoryBig:
		return "🔴"
	case CategorySmall:
		return "⚫"
	case CategoryLucky:
		return "🍀"
	}
	return "❔"
}

// categoryAliases — все написания типов ставок, которые принимает бот.
var categoryAliases = map[string]Category{
	"big": CategoryBig, "b": CategoryBig, "большое": CategoryBig, "бол": CategoryBig, "б": CategoryBig,
	"small": CategorySmall, "s": CategorySmall, "малое": CategorySmall, "мал": CategorySmall, "м": CategorySmall,
	"lucky": CategoryLucky, "l": CategoryLucky, "семь": CategoryLucky, "7": CategoryLucky, "л": CategoryLucky,
}

// ParseCategory разбирает тип ставки без учёта регистра.
func ParseCategory(s string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%q: %w", s, common.ErrInvalidBetType)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%d: %w", int(c), common.ErrInvalidBetType)
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// State — состояние раунда. Переходы только WAITING → CLOSED → OVER.
type State int

const (
	StateWaiting State = iota + 1 // принимаются ставки
	StateClosed                   // ставки закрыты, кости не брошены
	StateOver                     // кости брошены, раунд рассчитан
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateClosed:
		return "CLOSED"
	case StateOver:
		return "OVER"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "WAITING":
		*s = StateWaiting
	case "CLOSED":
		*s = StateClosed
	case "OVER":
		*s = StateOver
	default:
		return fmt.Errorf("неизвестное состояние раунда %q", b)
	}
	return nil
}

// Dice — результат броска двух костей.
type Dice [2]int

// Total возвращает сумму очков.
func (d Dice) Total() int {
	return d[0] + d[1]
}

// Valid проверяет, что обе грани в диапазоне 1–6.
func (d Dice) Valid() bool {
	return d[0] >= 1 && d[0] <= 6 && d[1] >= 1 && d[1] <= 6
}

func (d Dice) String() string {
	return fmt.Sprintf("%d + %d = %d", d[0], d[1], d.Total())
}

// Stake — суммарная ставка игрока на одну категорию в раунде.
type Stake struct {
	Username string             `json:"username,omitempty"`
	Amount   int64              `json:"amount"`
	Consumed wallet.Consumption `json:"consumed"`
}

// BetConfirmation — ответ на успешную ставку.
type BetConfirmation struct {
	MatchID     int64              `json:"match_id"`
	Category    Category           `json:"category"`
	Amount      int64              `json:"amount"`
	Consumed    wallet.Consumption `json:"consumed"`
	StakeTotal  int64              `json:"stake_total"` // ставка игрока на категорию с учётом прошлых
	Available   int64              `json:"available"`   // доступно для ставок после списания
	MainBalance int64              `json:"main_balance"`
}

// Status — публичное состояние раунда.
type Status struct {
	MatchID      int64                        `json:"match_id"`
	ChatID       int64                        `json:"chat_id"`
	State        State                        `json:"state"`
	Bets         map[Category]map[int64]int64 `json:"bets"`
	Totals       map[Category]int64           `json:"totals"`
	Participants []int64                      `json:"participants"`
	Result       *Dice                        `json:"result,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	IdleRounds   int                          `json:"idle_rounds"`
}

// PlayerResult — итог одной ставки игрока в рассчитанном раунде.
type PlayerResult struct {
	PlayerID    int64    `json:"player_id"`
	Username    string   `json:"username,omitempty"`
	Category    Category `json:"category"`
	Stake       int64    `json:"stake"`
	Payout      int64    `json:"payout"`
	MainBalance int64    `json:"main_balance"`
}

// Settlement — итог раунда.
type Settlement struct {
	SettlementID string         `json:"settlement_id"`
	ChatID       int64          `json:"chat_id"`
	MatchID      int64          `json:"match_id"`
	Dice         Dice           `json:"dice"`
	Winning      Category       `json:"winning"`
	Multiplier   string         `json:"multiplier"`
	Winners      []PlayerResult `json:"winners"`
	Losers       []PlayerResult `json:"losers"`
	TotalStaked  int64          `json:"total_staked"`
	TotalPaid    int64          `json:"total_paid"`
	IdleRounds   int            `json:"idle_rounds"`
	SettledAt    time.Time      `json:"settled_at"`
}

// Type реализует events.Event.
func (*Settlement) Type() events.EventType { return events.RoundSettled }

// Idle сообщает, что в раунде не было ни одной ставки.
func (s *Settlement) Idle() bool {
	return s.TotalStaked == 0
}

// MatchRecord — неизменяемая запись истории матчей.
type MatchRecord struct {
	ID          string         `json:"id"`
	ChatID      int64          `json:"chat_id"`
	MatchID     int64          `json:"match_id"`
	Dice        Dice           `json:"dice"`
	Winning     Category       `json:"winning"`
	Multiplier  string         `json:"multiplier"`
	TotalStaked int64          `json:"total_staked"`
	TotalPaid   int64          `json:"total_paid"`
	Results     []PlayerResult `json:"results"`
	SettledAt   time.Time      `json:"settled_at"`
}

// BetRecord — неизменяемая запись ставки, пишется при расчёте раунда.
type BetRecord struct {
	ID               string    `db:"id" json:"id"`
	ChatID           int64     `db:"chat_id" json:"chat_id"`
	MatchID          int64     `db:"match_id" json:"match_id"`
	PlayerID         int64     `db:"player_id" json:"player_id"`
	Category         Category  `db:"category" json:"category"`
	Stake            int64     `db:"stake" json:"stake"`
	ReferralConsumed int64     `db:"referral_consumed" json:"referral_consumed"`
	BonusConsumed    int64     `db:"bonus_consumed" json:"bonus_consumed"`
	Payout           int64     `db:"payout" json:"payout"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Refund — возврат ставок одного игрока при остановке раунда.
type Refund struct {
	PlayerID int64              `json:"player_id"`
	Username string             `json:"username,omitempty"`
	Amount   int64              `json:"amount"`
	Consumed wallet.Consumption `json:"consumed"`
}

// StopResult — итог остановки раунда админом.
type StopResult struct {
	ChatID        int64     `json:"chat_id"`
	MatchID       int64     `json:"match_id"`
	Refunds       []Refund  `json:"refunds"`
	TotalRefunded int64     `json:"total_refunded"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Type реализует events.Event.
func (*StopResult) Type() events.EventType { return events.RoundStopped }

// ChatRecord — сохраняемое состояние чата: счётчик матчей, простои и текущий раунд.
type ChatRecord struct {
	ChatID      int64            `json:"chat_id"`
	LastMatchID int64            `json:"last_match_id"`
	IdleRounds  int              `json:"idle_rounds"`
	Session     *SessionSnapshot `json:"session,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
