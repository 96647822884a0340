// Package events публикует игровые события во внешнюю шину (NATS JetStream).
// Публикация не влияет на игру: ошибка только логируется.
package events

import "context"

// EventType — тип события, он же последний сегмент subject.
type EventType string

const (
	RoundSettled         EventType = "round.settled"
	RoundStopped         EventType = "round.stopped"
	ReferralAwarded      EventType = "referral.awarded"
	AdminWalletsRefilled EventType = "admin.wallets_refilled"
	CashbackPaid         EventType = "cashback.paid"
)

// Event — любое событие, которое умеет назвать свой тип.
// Сериализуется в JSON целиком.
type Event interface {
	Type() EventType
}

// Publisher отправляет события.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher ничего не отправляет; используется, когда NATS не настроен.
type NoopPublisher struct{}

// NewNoopPublisher создаёт пустой publisher.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
