package cashback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

const persistTimeout = 3 * time.Second

// dayLayout — формат местной даты в отчётах.
const dayLayout = "2006-01-02"

// Service начисляет ежедневный кэшбэк.
type Service struct {
	repo      Repository
	wallets   *wallet.Service
	publisher events.Publisher
	rules     Rules
	loc       *time.Location
	now       func() time.Time
}

// NewService создаёт сервис кэшбэка. Сутки считаются в часовом поясе loc.
func NewService(repo Repository, wallets *wallet.Service, publisher events.Publisher, rules Rules, loc *time.Location) *Service {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		wallets:   wallets,
		publisher: publisher,
		rules:     rules,
		loc:       loc,
		now:       time.Now,
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Rules возвращает параметры кэшбэка.
func (s *Service) Rules() Rules {
	return s.rules
}

// Run начисляет кэшбэк за вчерашний местный день.
// Каждый день оплачивается не больше одного раза: повторный вызов
// возвращает common.ErrCashbackAlreadyPaid. Если кошелёк игрока не
// прочитался, зачисление откладывается до восстановления хранилища.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	now := s.now()
	local := now.In(s.loc)
	to := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	from := to.AddDate(0, 0, -1)
	report := &Report{Day: from.Format(dayLayout), Percent: s.rules.Percent.String(), At: now}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	losses, err := s.repo.SumLosses(qctx, from, to)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
	}

	qctx, cancel = context.WithTimeout(ctx, persistTimeout)
	claimed, err := s.repo.ClaimCashbackDay(qctx, from)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
	}
	if !claimed {
		return nil, fmt.Errorf("%s: %w", report.Day, common.ErrCashbackAlreadyPaid)
	}

	sort.Slice(losses, func(i, j int) bool {
		if losses[i].ChatID != losses[j].ChatID {
			return losses[i].ChatID < losses[j].ChatID
		}
		return losses[i].PlayerID < losses[j].PlayerID
	})

	for _, l := range losses {
		amount := s.rules.Amount(l.Amount)
		if amount <= 0 {
			continue
		}
		credit := Credit{PlayerID: l.PlayerID, ChatID: l.ChatID, Losses: l.Amount, Amount: amount}

		key := wallet.Key{PlayerID: l.PlayerID, ChatID: l.ChatID}
		_, err := s.wallets.Deliver(ctx, key, func(w *wallet.Wallet) {
			wallet.Credit(w, amount, now)
		})
		if err != nil {
			if !errors.Is(err, common.ErrPersistenceUnavailable) {
				log.WithError(err).WithFields(log.Fields{
					"user_id": l.PlayerID,
					"chat_id": l.ChatID,
				}).Error("Ошибка начисления кэшбэка")
				continue
			}
			credit.Deferred = true
			report.Deferred++
		}

		report.Credits = append(report.Credits, credit)
		report.Total += amount
	}

	if len(report.Credits) > 0 {
		events.PublishAsync(s.publisher, report)
	}

	log.WithFields(log.Fields{
		"day":      report.Day,
		"players":  len(report.Credits),
		"total":    report.Total,
		"deferred": report.Deferred,
	}).Info("Ежедневный кэшбэк начислен")
	return report, nil
}

// ChatText форматирует объявление о кэшбэке для одного чата.
func ChatText(r *Report, chatID int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 Ежедневный кэшбэк за %s (%s%% от проигрыша)\n", r.Day, r.Percent)
	for _, c := range r.ForChat(chatID) {
		fmt.Fprintf(&b, "\nid%d: %s (проиграно %s)", c.PlayerID,
			common.FormatSignedPoints(c.Amount), common.FormatPoints(c.Losses))
		if c.Deferred {
			b.WriteString(" ⏳")
		}
	}
	return b.String()
}
