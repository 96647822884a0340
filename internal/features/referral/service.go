// Package referral — service.go содержит правило начисления бонуса.
// Приглашение проходит два шага: игрок открывает ссылку /start ref_<id>
// (запись «ожидает»), затем вступает в группу — и пригласивший получает бонус.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// payloadPrefix — префикс параметра deep link.
const payloadPrefix = "ref_"

const persistTimeout = 3 * time.Second

// Service начисляет реферальные бонусы.
type Service struct {
	repo      Repository
	wallets   *wallet.Service
	publisher events.Publisher
	bonus     int64
	now       func() time.Time

	// mu сериализует начисления: проверка awarded и запись идут атомарно.
	mu      sync.Mutex
	records map[int64]*Record
}

// NewService создаёт сервис рефералов.
func NewService(repo Repository, wallets *wallet.Service, publisher events.Publisher, bonus int64) *Service {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		repo:      repo,
		wallets:   wallets,
		publisher: publisher,
		bonus:     bonus,
		now:       time.Now,
		records:   make(map[int64]*Record),
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Bonus возвращает размер бонуса.
func (s *Service) Bonus() int64 {
	return s.bonus
}

// SetPending запоминает, кто пригласил игрока. Побеждает первый пригласивший:
// если запись уже есть, возвращается false.
func (s *Service) SetPending(ctx context.Context, referredID, referrerID int64) (bool, error) {
	if referredID == referrerID {
		return false, common.ErrSelfReferral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx, referredID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	rec := &Record{
		ReferredID: referredID,
		ReferrerID: referrerID,
		CreatedAt:  s.now(),
	}
	s.records[referredID] = rec
	s.save(ctx, rec)

	log.WithFields(log.Fields{
		"referrer_id": referrerID,
		"referred_id": referredID,
	}).Info("Приглашение ожидает вступления в группу")
	return true, nil
}

// AwardReferral начисляет бонус пригласившему.
// Самоприглашение и повторное начисление молча игнорируются: возвращается false.
// Если запись о приглашении не удалось прочитать, бонус не начисляется
// и тоже возвращается false: повторный вызов позже может пройти.
// Бонус зачисляется в реферальные очки кошелька пригласившего в чате chatID.
func (s *Service) AwardReferral(ctx context.Context, chatID, referrerID, referredID int64) bool {
	if referrerID == referredID {
		log.WithError(common.ErrSelfReferral).WithField("user_id", referrerID).Debug("Самоприглашение отклонено")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, referredID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"referrer_id": referrerID,
			"referred_id": referredID,
		}).Warn("Бонус за приглашение отложен: запись недоступна")
		return false
	}
	if rec != nil && rec.Awarded {
		log.WithFields(log.Fields{
			"referrer_id": rec.ReferrerID,
			"referred_id": referredID,
		}).Debug("Бонус за приглашение уже начислен")
		return false
	}

	now := s.now()
	if rec == nil {
		rec = &Record{ReferredID: referredID, CreatedAt: now}
	}
	rec.ReferrerID = referrerID
	rec.ChatID = chatID
	rec.Awarded = true
	rec.AwardedAt = now
	s.records[referredID] = rec

	bonus := s.bonus
	if _, err := s.wallets.Deliver(ctx, wallet.Key{PlayerID: referrerID, ChatID: chatID}, func(w *wallet.Wallet) {
		wallet.CreditReferral(w, bonus, now)
	}); err != nil {
		log.WithError(err).WithField("referrer_id", referrerID).Warn("Бонус за приглашение будет зачислен после восстановления хранилища")
	}
	s.save(ctx, rec)

	events.PublishAsync(s.publisher, &AwardedEvent{
		ChatID:     chatID,
		ReferrerID: referrerID,
		ReferredID: referredID,
		Bonus:      s.bonus,
		AwardedAt:  now,
	})

	log.WithFields(log.Fields{
		"chat_id":     chatID,
		"referrer_id": referrerID,
		"referred_id": referredID,
		"bonus":       s.bonus,
	}).Info("Начислен бонус за приглашение")
	return true
}

// HandleJoin вызывается при вступлении игрока в группу.
// Если у игрока есть неоплаченное приглашение, бонус начисляется пригласившему.
func (s *Service) HandleJoin(ctx context.Context, chatID, referredID int64) (int64, bool) {
	s.mu.Lock()
	rec, err := s.load(ctx, referredID)
	s.mu.Unlock()

	if err != nil || rec == nil || rec.Awarded {
		return 0, false
	}
	return rec.ReferrerID, s.AwardReferral(ctx, chatID, rec.ReferrerID, referredID)
}

// Get возвращает копию записи о приглашении игрока.
func (s *Service) Get(ctx context.Context, referredID int64) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, referredID)
	if err != nil || rec == nil {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Link возвращает ссылку-приглашение вида https://t.me/<bot>?start=ref_<id>.
func Link(botUsername string, playerID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, payloadPrefix, playerID)
}

// ParsePayload разбирает параметр /start. Возвращает id пригласившего.
func ParsePayload(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, payloadPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, payloadPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// load ищет запись в памяти, затем в хранилище. (nil, nil) — записи нет.
// Ошибка чтения ничего не кэширует. Вызывается под s.mu.
func (s *Service) load(ctx context.Context, referredID int64) (*Record, error) {
	if rec, ok := s.records[referredID]; ok {
		return rec, nil
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	rec, err := s.repo.LoadReferral(qctx, referredID)
	switch {
	case err == nil:
		s.records[referredID] = rec
		return rec, nil
	case errors.Is(err, common.ErrNotFound):
		return nil, nil
	default:
		err = fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
		log.WithError(err).WithField("referred_id", referredID).Warn("Не удалось загрузить приглашение")
		return nil, err
	}
}

func (s *Service) save(ctx context.Context, rec *Record) {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	cp := *rec
	if err := s.repo.SaveReferral(qctx, &cp); err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).
			WithField("referred_id", rec.ReferredID).Warn("Не удалось сохранить приглашение")
	}
}
