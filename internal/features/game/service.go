// Package game — service.go координирует раунды: старт, ставки, закрытие,
// расчёт и остановку. Все операции над раундом выполняются под блокировкой чата.
// Хранилище вызывается в режиме best effort: его ошибки логируются и не
// откатывают уже принятое решение.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// persistTimeout ограничивает одну операцию с хранилищем.
const persistTimeout = 3 * time.Second

// Rules — настройки игры, читаются из конфигурации.
type Rules struct {
	MinBet       int64
	MaxBet       int64
	Multipliers  Multipliers
	HistoryLimit int
	StopCooldown time.Duration
}

// Service управляет раундами во всех чатах.
type Service struct {
	repo      Repository
	wallets   *wallet.Service
	roller    Roller
	publisher events.Publisher
	rules     Rules
	registry  *Registry
	now       func() time.Time
}

// NewService создаёт игровой сервис.
func NewService(repo Repository, wallets *wallet.Service, roller Roller, publisher events.Publisher, rules Rules) *Service {
	if rules.Multipliers == nil {
		rules.Multipliers = DefaultMultipliers()
	}
	if rules.HistoryLimit <= 0 {
		rules.HistoryLimit = 50
	}
	if roller == nil {
		roller = RandomRoller{}
	}
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		repo:      repo,
		wallets:   wallets,
		roller:    roller,
		publisher: publisher,
		rules:     rules,
		registry:  NewRegistry(),
		now:       time.Now,
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Rules возвращает действующие правила.
func (s *Service) Rules() Rules {
	return s.rules
}

// StartRound открывает новый раунд в чате.
func (s *Service) StartRound(ctx context.Context, chatID int64) (*Status, error) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return nil, err
	}

	if cs.session != nil && cs.session.Active() {
		return nil, common.ErrGameInProgress
	}
	now := s.now()
	if now.Before(cs.cooldownUntil) {
		return nil, fmt.Errorf("до %s: %w", cs.cooldownUntil.Format("15:04:05"), common.ErrStopCooldown)
	}

	cs.lastMatchID++
	cs.session = NewSession(chatID, cs.lastMatchID, now)
	s.saveChat(ctx, cs, chatID)

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"match_id": cs.lastMatchID,
	}).Info("Новый раунд открыт")

	st := cs.session.Status()
	st.IdleRounds = cs.idleRounds
	return st, nil
}

// PlaceBet принимает ставку игрока.
func (s *Service) PlaceBet(ctx context.Context, chatID, playerID int64, username string, category Category, amount int64) (*BetConfirmation, error) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return nil, err
	}

	session := cs.session
	if session == nil {
		return nil, common.ErrNoActiveGame
	}
	if session.State != StateWaiting {
		return nil, common.ErrGameClosed
	}
	if !category.Valid() {
		return nil, common.ErrInvalidBetType
	}
	if amount < s.rules.MinBet {
		return nil, fmt.Errorf("минимум %d: %w", s.rules.MinBet, common.ErrBetTooSmall)
	}
	if amount > s.rules.MaxBet {
		return nil, fmt.Errorf("максимум %d: %w", s.rules.MaxBet, common.ErrBetTooLarge)
	}

	consumed, w, err := s.wallets.Debit(ctx, wallet.Key{PlayerID: playerID, ChatID: chatID}, username, amount)
	if err != nil {
		return nil, err
	}

	stake, err := session.AddStake(category, playerID, username, amount, consumed)
	if err != nil {
		// Состояние проверено выше под той же блокировкой, сюда попасть нельзя.
		return nil, err
	}
	s.saveChat(ctx, cs, chatID)

	log.WithFields(log.Fields{
		"chat_id":           chatID,
		"match_id":          session.MatchID,
		"user_id":           playerID,
		"category":          category,
		"amount":            amount,
		"referral_consumed": consumed.Referral,
		"bonus_consumed":    consumed.Bonus,
		"main_consumed":     consumed.Main,
	}).Info("Ставка принята")

	return &BetConfirmation{
		MatchID:     session.MatchID,
		Category:    category,
		Amount:      amount,
		Consumed:    consumed,
		StakeTotal:  stake.Amount,
		Available:   wallet.AvailableToBet(w),
		MainBalance: w.MainBalance,
	}, nil
}

// CloseBetting закрывает приём ставок.
func (s *Service) CloseBetting(ctx context.Context, chatID int64) error {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return err
	}

	if cs.session == nil {
		return common.ErrNoActiveGame
	}
	if err := cs.session.Close(s.now()); err != nil {
		return err
	}
	s.saveChat(ctx, cs, chatID)

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"match_id": cs.session.MatchID,
		"staked":   cs.session.TotalStaked(),
	}).Info("Приём ставок закрыт")
	return nil
}

// Settle бросает кости, выплачивает выигрыши и завершает раунд.
func (s *Service) Settle(ctx context.Context, chatID int64) (*Settlement, error) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return nil, err
	}

	session := cs.session
	if session == nil {
		return nil, common.ErrNoActiveGame
	}
	if session.State != StateClosed {
		return nil, fmt.Errorf("расчёт в состоянии %s: %w", session.State, common.ErrInvalidStateTransition)
	}

	dice := s.roll(ctx, chatID)
	if err := session.SetResult(dice); err != nil {
		return nil, err
	}
	winning, err := Classify(dice.Total())
	if err != nil {
		return nil, err
	}
	multiplier := s.rules.Multipliers[winning]
	now := s.now()

	settlement := &Settlement{
		SettlementID: uuid.New().String(),
		ChatID:       chatID,
		MatchID:      session.MatchID,
		Dice:         dice,
		Winning:      winning,
		Multiplier:   multiplier.String(),
		TotalStaked:  session.TotalStaked(),
		SettledAt:    now,
	}

	var bets []*BetRecord
	for _, category := range Categories {
		for _, playerID := range session.SortedPlayers(category) {
			stake := session.Bets[category][playerID]
			key := wallet.Key{PlayerID: playerID, ChatID: chatID}

			var payout int64
			won := category == winning
			if won {
				payout = Payout(stake.Amount, multiplier)
			}
			w, _ := s.wallets.Deliver(ctx, key, func(w *wallet.Wallet) {
				if won {
					wallet.Credit(w, payout, now)
					w.TotalWins++
				} else {
					w.TotalLosses++
					w.LastActive = now
				}
			})

			res := PlayerResult{
				PlayerID: playerID,
				Username: stake.Username,
				Category: category,
				Stake:    stake.Amount,
				Payout:   payout,
			}
			if w != nil {
				res.MainBalance = w.MainBalance
			}
			if won {
				settlement.Winners = append(settlement.Winners, res)
				settlement.TotalPaid += payout
			} else {
				settlement.Losers = append(settlement.Losers, res)
			}

			bets = append(bets, &BetRecord{
				ID:               uuid.New().String(),
				ChatID:           chatID,
				MatchID:          session.MatchID,
				PlayerID:         playerID,
				Category:         category,
				Stake:            stake.Amount,
				ReferralConsumed: stake.Consumed.Referral,
				BonusConsumed:    stake.Consumed.Bonus,
				Payout:           payout,
				CreatedAt:        now,
			})
		}
	}

	if err := session.Finish(); err != nil {
		return nil, err
	}

	if settlement.Idle() {
		cs.idleRounds++
	} else {
		cs.idleRounds = 0
	}
	settlement.IdleRounds = cs.idleRounds

	record := &MatchRecord{
		ID:          settlement.SettlementID,
		ChatID:      chatID,
		MatchID:     session.MatchID,
		Dice:        dice,
		Winning:     winning,
		Multiplier:  settlement.Multiplier,
		TotalStaked: settlement.TotalStaked,
		TotalPaid:   settlement.TotalPaid,
		Results:     append(append([]PlayerResult(nil), settlement.Winners...), settlement.Losers...),
		SettledAt:   now,
	}
	cs.appendHistory(record, s.rules.HistoryLimit)

	s.persistSettlement(ctx, bets, record)
	s.saveChat(ctx, cs, chatID)
	events.PublishAsync(s.publisher, settlement)

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"match_id": session.MatchID,
		"dice":     dice.String(),
		"winning":  winning,
		"staked":   settlement.TotalStaked,
		"paid":     settlement.TotalPaid,
		"winners":  len(settlement.Winners),
		"losers":   len(settlement.Losers),
	}).Info("Раунд рассчитан")

	return settlement, nil
}

// StopGame отменяет незавершённый раунд и возвращает все ставки в те валюты,
// из которых они были списаны. После остановки действует пауза StopCooldown.
func (s *Service) StopGame(ctx context.Context, chatID int64) (*StopResult, error) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return nil, err
	}

	session := cs.session
	if session == nil || !session.Active() {
		return nil, common.ErrNoActiveGame
	}

	now := s.now()
	result := &StopResult{ChatID: chatID, MatchID: session.MatchID}

	refunds := make(map[int64]*Refund)
	var order []int64
	for _, category := range Categories {
		for _, playerID := range session.SortedPlayers(category) {
			stake := session.Bets[category][playerID]
			r, ok := refunds[playerID]
			if !ok {
				r = &Refund{PlayerID: playerID}
				refunds[playerID] = r
				order = append(order, playerID)
			}
			if stake.Username != "" {
				r.Username = stake.Username
			}
			r.Amount += stake.Amount
			r.Consumed = r.Consumed.Add(stake.Consumed)
		}
	}

	for _, playerID := range order {
		r := refunds[playerID]
		_, _ = s.wallets.Deliver(ctx, wallet.Key{PlayerID: playerID, ChatID: chatID}, func(w *wallet.Wallet) {
			wallet.Refund(w, r.Consumed, now)
		})
		result.Refunds = append(result.Refunds, *r)
		result.TotalRefunded += r.Amount
	}

	cs.session = nil
	cs.cooldownUntil = now.Add(s.rules.StopCooldown)
	result.CooldownUntil = cs.cooldownUntil
	s.saveChat(ctx, cs, chatID)
	events.PublishAsync(s.publisher, result)

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"match_id": result.MatchID,
		"refunded": result.TotalRefunded,
		"players":  len(result.Refunds),
	}).Warn("Раунд остановлен администратором")
	return result, nil
}

// Status возвращает состояние текущего (или последнего) раунда.
func (s *Service) Status(ctx context.Context, chatID int64) (*Status, error) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return nil, err
	}

	if cs.session == nil {
		return nil, common.ErrNoActiveGame
	}
	st := cs.session.Status()
	st.IdleRounds = cs.idleRounds
	return st, nil
}

// History возвращает последние limit матчей чата, от новых к старым.
func (s *Service) History(ctx context.Context, chatID int64, limit int) []*MatchRecord {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if s.ensureLoaded(ctx, cs, chatID) == nil {
		s.loadHistory(ctx, cs, chatID)
	}

	n := len(cs.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*MatchRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, cs.history[i])
	}
	return out
}

// IdleRounds возвращает число подряд идущих раундов без ставок.
func (s *Service) IdleRounds(ctx context.Context, chatID int64) int {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	_ = s.ensureLoaded(ctx, cs, chatID)
	return cs.idleRounds
}

// ResetIdle обнуляет счётчик простоя (игрок вручную запустил игру).
func (s *Service) ResetIdle(ctx context.Context, chatID int64) {
	cs := s.registry.acquire(chatID)
	defer cs.release()
	if err := s.ensureLoaded(ctx, cs, chatID); err != nil {
		return
	}
	if cs.idleRounds != 0 {
		cs.idleRounds = 0
		s.saveChat(ctx, cs, chatID)
	}
}

// ActiveChats возвращает чаты, в которых есть незавершённый раунд.
func (s *Service) ActiveChats() []int64 {
	var out []int64
	for _, chatID := range s.registry.ChatIDs() {
		cs := s.registry.acquire(chatID)
		if cs.session != nil && cs.session.Active() {
			out = append(out, chatID)
		}
		cs.release()
	}
	return out
}

// Recover загружает из хранилища чаты с незавершёнными раундами
// и возвращает их id. Вызывается при старте процесса.
func (s *Service) Recover(ctx context.Context) ([]int64, error) {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	ids, err := s.repo.ListActiveChats(qctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
	}
	for _, chatID := range ids {
		cs := s.registry.acquire(chatID)
		err := s.ensureLoaded(ctx, cs, chatID)
		cs.release()
		if err != nil {
			return nil, err
		}
	}
	return s.ActiveChats(), nil
}

// roll бросает кости; при сбое транспорта используется генератор случайных чисел.
func (s *Service) roll(ctx context.Context, chatID int64) Dice {
	d, err := s.roller.Roll(ctx, chatID)
	if err == nil && d.Valid() {
		return d
	}
	log.WithError(err).WithFields(log.Fields{
		"chat_id": chatID,
		"dice":    d,
	}).Warn("Бросок не удался, бросаем локально")
	d, _ = RandomRoller{}.Roll(ctx, chatID)
	return d
}

// ensureLoaded подтягивает состояние чата из хранилища при первом обращении.
// Пока состояние не прочитано, чат не меняется и не сохраняется: иначе
// пустая запись затёрла бы номер последнего матча и открытые ставки.
// Вызывается под блокировкой чата.
func (s *Service) ensureLoaded(ctx context.Context, cs *chatState, chatID int64) error {
	if cs.loaded {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	rec, err := s.repo.LoadGameSession(qctx, chatID)
	cancel()

	switch {
	case err == nil:
		cs.lastMatchID = max(cs.lastMatchID, rec.LastMatchID)
		cs.idleRounds = rec.IdleRounds
		if rec.Session != nil {
			cs.session = RestoreSession(rec.Session)
			log.WithFields(log.Fields{
				"chat_id":  chatID,
				"match_id": rec.Session.MatchID,
				"state":    rec.Session.State,
			}).Info("Раунд восстановлен из хранилища")
		}
	case errors.Is(err, common.ErrNotFound):
	default:
		err = fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
		log.WithError(err).WithField("chat_id", chatID).Warn("Не удалось загрузить состояние чата")
		return err
	}
	cs.loaded = true

	s.loadHistory(ctx, cs, chatID)
	return nil
}

// loadHistory читает историю матчей, пока это не удалось хотя бы раз.
// Матчи, рассчитанные до успешного чтения, дописываются после сохранённых.
func (s *Service) loadHistory(ctx context.Context, cs *chatState, chatID int64) {
	if cs.historyLoaded {
		return
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	history, err := s.repo.ListMatchHistory(qctx, chatID, s.rules.HistoryLimit)
	cancel()
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Не удалось загрузить историю матчей")
		return
	}

	var lastStored int64
	if n := len(history); n > 0 {
		lastStored = history[n-1].MatchID
	}
	merged := history
	for _, rec := range cs.history {
		if rec.MatchID > lastStored {
			merged = append(merged, rec)
		}
	}
	cs.history = nil
	for _, rec := range merged {
		cs.appendHistory(rec, s.rules.HistoryLimit)
	}
	cs.historyLoaded = true
}

// saveChat сохраняет счётчики и текущий раунд. Вызывается под блокировкой чата.
func (s *Service) saveChat(ctx context.Context, cs *chatState, chatID int64) {
	rec := &ChatRecord{
		ChatID:      chatID,
		LastMatchID: cs.lastMatchID,
		IdleRounds:  cs.idleRounds,
		UpdatedAt:   s.now(),
	}
	if cs.session != nil && cs.session.Active() {
		rec.Session = cs.session.Snapshot()
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.repo.SaveGameSession(qctx, rec); err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).
			WithField("chat_id", chatID).Warn("Не удалось сохранить состояние чата")
	}
}

// persistSettlement пишет ставки и запись истории; ошибки только логируются.
func (s *Service) persistSettlement(ctx context.Context, bets []*BetRecord, record *MatchRecord) {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	for _, b := range bets {
		if err := s.repo.AppendBetRecord(qctx, b); err != nil {
			log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).WithFields(log.Fields{
				"chat_id":  b.ChatID,
				"match_id": b.MatchID,
				"user_id":  b.PlayerID,
			}).Warn("Не удалось сохранить ставку")
		}
	}
	if err := s.repo.AppendMatchHistory(qctx, record, s.rules.HistoryLimit); err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).WithFields(log.Fields{
			"chat_id":  record.ChatID,
			"match_id": record.MatchID,
		}).Warn("Не удалось сохранить историю матча")
	}
}
