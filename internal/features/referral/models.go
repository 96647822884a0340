// Package referral начисляет одноразовый бонус пригласившему игроку.
// models.go описывает запись о приглашении.
package referral

import (
	"time"

	"github.com/rgndice/dicebot/internal/events"
)

// Record — приглашение одного игрока. Одна запись на приглашённого.
type Record struct {
	ReferredID int64     `json:"referred_id"` // Кого пригласили (ключ)
	ReferrerID int64     `json:"referrer_id"` // Кто пригласил
	ChatID     int64     `json:"chat_id"`     // Чат, в котором начислен бонус (0 — ещё не начислен)
	Awarded    bool      `json:"awarded"`     // false → true ровно один раз
	CreatedAt  time.Time `json:"created_at"`
	AwardedAt  time.Time `json:"awarded_at,omitempty"`
}

// AwardedEvent — событие о начисленном бонусе.
type AwardedEvent struct {
	ChatID     int64     `json:"chat_id"`
	ReferrerID int64     `json:"referrer_id"`
	ReferredID int64     `json:"referred_id"`
	Bonus      int64     `json:"bonus"`
	AwardedAt  time.Time `json:"awarded_at"`
}

func (*AwardedEvent) Type() events.EventType { return events.ReferralAwarded }
