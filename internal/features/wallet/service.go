// Package wallet — service.go держит кошельки в памяти и синхронизирует их с хранилищем.
// Память считается источником истины: ошибка хранилища логируется,
// но уже применённое изменение не откатывается.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
)

// persistTimeout ограничивает одну операцию с хранилищем.
const persistTimeout = 3 * time.Second

// Service управляет кошельками игроков.
type Service struct {
	repo         Repository
	welcomeBonus int64
	now          func() time.Time

	mu      sync.Mutex
	wallets map[Key]*entry
}

// entry сериализует все изменения одного кошелька.
// wallet == nil — кошелёк ещё не прочитан из хранилища; pending копит
// зачисления, которые применятся поверх сохранённой версии после чтения.
type entry struct {
	mu      sync.Mutex
	wallet  *Wallet
	pending []func(w *Wallet)
}

// NewService создаёт сервис кошельков.
// welcomeBonus зачисляется в бонусные очки при первом создании кошелька.
func NewService(repo Repository, welcomeBonus int64) *Service {
	return &Service{
		repo:         repo,
		welcomeBonus: welcomeBonus,
		now:          time.Now,
		wallets:      make(map[Key]*entry),
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Update применяет fn к кошельку под его личной блокировкой.
// fn работает с копией: если она вернула ошибку, кошелёк не меняется.
// Если кошелёк не удалось прочитать, возвращается ErrPersistenceUnavailable и ничего не меняется.
// После успешного изменения кошелёк сохраняется в хранилище (best effort).
func (s *Service) Update(ctx context.Context, key Key, username string, fn func(w *Wallet) error) (*Wallet, error) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, e, key, username); err != nil {
		return nil, err
	}

	draft := e.wallet.Clone()
	if username != "" {
		draft.Username = username
	}
	if err := fn(draft); err != nil {
		return e.wallet.Clone(), err
	}
	e.wallet = draft
	s.persist(ctx, draft)
	return draft.Clone(), nil
}

// Deliver применяет зачисление, которое нельзя потерять (выигрыш, возврат).
// Если кошелёк не удалось прочитать, fn откладывается до следующего успешного
// чтения и возвращается ErrPersistenceUnavailable.
func (s *Service) Deliver(ctx context.Context, key Key, fn func(w *Wallet)) (*Wallet, error) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, e, key, ""); err != nil {
		e.pending = append(e.pending, fn)
		log.WithFields(log.Fields{
			"user_id": key.PlayerID,
			"chat_id": key.ChatID,
			"pending": len(e.pending),
		}).Warn("Зачисление отложено до восстановления хранилища")
		return nil, err
	}

	fn(e.wallet)
	s.persist(ctx, e.wallet)
	return e.wallet.Clone(), nil
}

// Get возвращает копию кошелька, создавая его при первом обращении.
func (s *Service) Get(ctx context.Context, playerID, chatID int64) (*Wallet, error) {
	key := Key{PlayerID: playerID, ChatID: chatID}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, e, key, ""); err != nil {
		return nil, err
	}
	return e.wallet.Clone(), nil
}

// Lookup возвращает существующий кошелёк, не создавая новый.
// Для неизвестного игрока — common.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, playerID, chatID int64) (*Wallet, error) {
	key := Key{PlayerID: playerID, ChatID: chatID}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	found, err := s.load(ctx, e, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrNotFound
	}
	return e.wallet.Clone(), nil
}

// Snapshot возвращает балансы и счётчики игрока.
func (s *Service) Snapshot(ctx context.Context, playerID, chatID int64) (Snapshot, error) {
	w, err := s.Get(ctx, playerID, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// Debit списывает ставку с кошелька игрока и увеличивает счётчик ставок.
func (s *Service) Debit(ctx context.Context, key Key, username string, amount int64) (Consumption, *Wallet, error) {
	var c Consumption
	w, err := s.Update(ctx, key, username, func(w *Wallet) error {
		var err error
		c, err = Debit(w, amount, s.now())
		if err != nil {
			return err
		}
		w.TotalBets++
		return nil
	})
	return c, w, err
}

// AdjustMain меняет основной баланс на delta (корректировка админом).
// Отрицательная delta снимает не больше, чем есть; возвращается фактическое изменение.
func (s *Service) AdjustMain(ctx context.Context, key Key, delta int64) (int64, *Wallet, error) {
	var applied int64
	w, err := s.Update(ctx, key, "", func(w *Wallet) error {
		now := s.now()
		if delta >= 0 {
			Credit(w, delta, now)
			applied = delta
			return nil
		}
		applied = -TakeMain(w, -delta, now)
		return nil
	})
	return applied, w, err
}

// Top возвращает лидеров чата по основному балансу.
// Данные хранилища дополняются кошельками из памяти, память приоритетнее.
func (s *Service) Top(ctx context.Context, chatID int64, limit int) []*Wallet {
	merged := make(map[int64]*Wallet)

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	stored, err := s.repo.TopWallets(qctx, chatID, limit)
	cancel()
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Лидерборд из хранилища недоступен, используем память")
	}
	for _, w := range stored {
		merged[w.PlayerID] = w
	}

	s.mu.Lock()
	entries := make([]*entry, 0, len(s.wallets))
	for k, e := range s.wallets {
		if k.ChatID == chatID {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.wallet != nil {
			merged[e.wallet.PlayerID] = e.wallet.Clone()
		}
		e.mu.Unlock()
	}

	out := make([]*Wallet, 0, len(merged))
	for _, w := range merged {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MainBalance != out[j].MainBalance {
			return out[i].MainBalance > out[j].MainBalance
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Service) entry(key Key) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.wallets[key]
	if !ok {
		e = &entry{}
		s.wallets[key] = e
	}
	return e
}

// load читает кошелёк из хранилища, если он ещё не в памяти.
// found == false — в хранилище кошелька нет. При ошибке чтения в памяти
// ничего не остаётся, следующее обращение прочитает снова. Вызывается под e.mu.
func (s *Service) load(ctx context.Context, e *entry, key Key) (found bool, err error) {
	if e.wallet != nil {
		return true, nil
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	w, err := s.repo.LoadWallet(qctx, key.PlayerID, key.ChatID)
	cancel()

	switch {
	case err == nil:
		e.wallet = w
		s.replay(ctx, e)
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	default:
		err = fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
		log.WithError(err).WithFields(log.Fields{
			"user_id": key.PlayerID,
			"chat_id": key.ChatID,
		}).Warn("Не удалось загрузить кошелёк")
		return false, err
	}
}

// ensureLoaded загружает кошелёк из хранилища или создаёт новый.
// Вызывается под e.mu.
func (s *Service) ensureLoaded(ctx context.Context, e *entry, key Key, username string) error {
	found, err := s.load(ctx, e, key)
	if err != nil || found {
		return err
	}

	w := s.newWallet(key, username)
	CreditBonus(w, s.welcomeBonus, s.now())
	w.WelcomeGranted = true
	log.WithFields(log.Fields{
		"user_id": key.PlayerID,
		"chat_id": key.ChatID,
		"bonus":   s.welcomeBonus,
	}).Info("Создан новый кошелёк")
	e.wallet = w
	if len(e.pending) > 0 {
		s.replay(ctx, e)
		return nil
	}
	s.persist(ctx, w)
	return nil
}

// replay применяет отложенные зачисления к только что прочитанному кошельку.
func (s *Service) replay(ctx context.Context, e *entry) {
	if len(e.pending) == 0 {
		return
	}
	for _, fn := range e.pending {
		fn(e.wallet)
	}
	log.WithFields(log.Fields{
		"user_id": e.wallet.PlayerID,
		"chat_id": e.wallet.ChatID,
		"applied": len(e.pending),
	}).Info("Отложенные зачисления применены")
	e.pending = nil
	s.persist(ctx, e.wallet)
}

func (s *Service) newWallet(key Key, username string) *Wallet {
	return &Wallet{
		PlayerID:   key.PlayerID,
		ChatID:     key.ChatID,
		Username:   username,
		LastActive: s.now(),
	}
}

// persist сохраняет кошелёк; ошибка только логируется.
func (s *Service) persist(ctx context.Context, w *Wallet) {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := s.repo.SaveWallet(qctx, w.Clone()); err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).WithFields(log.Fields{
			"user_id": w.PlayerID,
			"chat_id": w.ChatID,
		}).Warn("Не удалось сохранить кошелёк")
	}
}
