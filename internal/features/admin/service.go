// Package admin — service.go содержит кошельки администраторов:
// ленивое создание, траты на корректировки и ежедневное пополнение до потолка.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

const persistTimeout = 3 * time.Second

// Service управляет администраторами.
type Service struct {
	repo      Repository
	wallets   *wallet.Service
	publisher events.Publisher
	ceiling   int64
	admins    mapset.Set[int64]
	auth      *Authenticator
	now       func() time.Time

	mu    sync.Mutex
	cache map[Key]*Wallet
}

// NewService создаёт сервис администраторов.
// adminIDs — список из ADMIN_IDS, passwordHash — ADMIN_PASSWORD_HASH (Argon2id).
func NewService(repo Repository, wallets *wallet.Service, publisher events.Publisher, ceiling int64, adminIDs []int64, passwordHash string) *Service {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		repo:      repo,
		wallets:   wallets,
		publisher: publisher,
		ceiling:   ceiling,
		admins:    mapset.NewSet(adminIDs...),
		auth:      NewAuthenticator(passwordHash),
		now:       time.Now,
		cache:     make(map[Key]*Wallet),
	}
}

// SetClock подменяет часы (для тестов).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.auth.now = now
}

// Auth возвращает аутентификатор DM-панели.
func (s *Service) Auth() *Authenticator {
	return s.auth
}

// Ceiling возвращает потолок кошелька.
func (s *Service) Ceiling() int64 {
	return s.ceiling
}

// IsAdmin сообщает, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return s.admins.Contains(userID)
}

// EnsureWallet возвращает кошелёк администратора, создавая полный при первом обращении.
func (s *Service) EnsureWallet(ctx context.Context, adminID, chatID int64) (*Wallet, error) {
	if !s.IsAdmin(adminID) {
		return nil, common.ErrNotAdmin
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.ensure(ctx, Key{AdminID: adminID, ChatID: chatID})
	if err != nil {
		return nil, err
	}
	return w.clone(), nil
}

// Spend списывает amount из кошелька администратора.
func (s *Service) Spend(ctx context.Context, adminID, chatID, amount int64) (*Wallet, error) {
	if !s.IsAdmin(adminID) {
		return nil, common.ErrNotAdmin
	}
	if amount <= 0 {
		return nil, common.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.ensure(ctx, Key{AdminID: adminID, ChatID: chatID})
	if err != nil {
		return nil, err
	}
	if w.Points < amount {
		return w.clone(), fmt.Errorf("доступно %d, нужно %d: %w", w.Points, amount, common.ErrAdminWalletInsufficient)
	}
	w.Points -= amount
	s.save(ctx, w)
	return w.clone(), nil
}

// AdjustScore меняет основной баланс игрока.
// Положительная delta оплачивается из кошелька администратора;
// отрицательная снимает не больше основного баланса и в кошелёк администратора не возвращается.
func (s *Service) AdjustScore(ctx context.Context, adminID, chatID, playerID, delta int64) (*Adjustment, error) {
	if !s.IsAdmin(adminID) {
		return nil, common.ErrNotAdmin
	}
	if delta == 0 {
		return nil, common.ErrInvalidAmount
	}

	adj := &Adjustment{
		AdminID:   adminID,
		ChatID:    chatID,
		PlayerID:  playerID,
		Requested: delta,
	}

	// кошелёк игрока должен читаться до списания очков администратора
	if _, err := s.wallets.Get(ctx, playerID, chatID); err != nil {
		return nil, err
	}

	if delta > 0 {
		w, err := s.Spend(ctx, adminID, chatID, delta)
		if err != nil {
			return nil, err
		}
		adj.AdminPoints = w.Points
	} else {
		w, err := s.EnsureWallet(ctx, adminID, chatID)
		if err != nil {
			return nil, err
		}
		adj.AdminPoints = w.Points
	}

	applied, pw, err := s.wallets.AdjustMain(ctx, wallet.Key{PlayerID: playerID, ChatID: chatID}, delta)
	if err != nil {
		return nil, err
	}
	adj.Applied = applied
	adj.PlayerMain = pw.MainBalance

	log.WithFields(log.Fields{
		"admin_id":  adminID,
		"chat_id":   chatID,
		"user_id":   playerID,
		"requested": delta,
		"applied":   applied,
	}).Info("Администратор изменил баланс игрока")
	return adj, nil
}

// List возвращает кошельки администраторов чата (chatID == 0 — всех чатов).
func (s *Service) List(ctx context.Context, chatID int64) []*Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mergeStored(ctx)

	var out []*Wallet
	for _, w := range s.cache {
		if chatID == 0 || w.ChatID == chatID {
			out = append(out, w.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].AdminID < out[j].AdminID
	})
	return out
}

// Refill сбрасывает кошельки до потолка (chatID == 0 — во всех чатах).
// Повторный запуск даёт то же состояние. Ошибка сохранения одной записи
// логируется и не прерывает проход.
func (s *Service) Refill(ctx context.Context, chatID int64) *RefillReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mergeStored(ctx)

	now := s.now()
	report := &RefillReport{ChatID: chatID, Ceiling: s.ceiling, At: now}

	keys := make([]Key, 0, len(s.cache))
	for k := range s.cache {
		if chatID == 0 || k.ChatID == chatID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ChatID != keys[j].ChatID {
			return keys[i].ChatID < keys[j].ChatID
		}
		return keys[i].AdminID < keys[j].AdminID
	})

	for _, k := range keys {
		w := s.cache[k]
		w.Points = s.ceiling
		w.LastRefill = now
		report.Refilled++
		if !s.save(ctx, w) {
			report.Failed++
		}
	}

	events.PublishAsync(s.publisher, report)

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"ceiling":  s.ceiling,
		"refilled": report.Refilled,
		"failed":   report.Failed,
	}).Info("Кошельки администраторов пополнены")
	return report
}

// ensure возвращает кошелёк из кэша или хранилища, создавая новый. Вызывается под s.mu.
func (s *Service) ensure(ctx context.Context, key Key) (*Wallet, error) {
	if w, ok := s.cache[key]; ok {
		return w, nil
	}

	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	w, err := s.repo.LoadAdminWallet(qctx, key.AdminID, key.ChatID)
	cancel()

	switch {
	case err == nil:
		s.cache[key] = w
		return w, nil
	case !errors.Is(err, common.ErrNotFound):
		err = fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)
		log.WithError(err).WithFields(log.Fields{
			"admin_id": key.AdminID,
			"chat_id":  key.ChatID,
		}).Warn("Не удалось загрузить кошелёк администратора")
		return nil, err
	}

	w = &Wallet{
		AdminID:    key.AdminID,
		ChatID:     key.ChatID,
		Points:     s.ceiling,
		LastRefill: s.now(),
	}
	s.cache[key] = w
	s.save(ctx, w)
	log.WithFields(log.Fields{
		"admin_id": key.AdminID,
		"chat_id":  key.ChatID,
		"points":   w.Points,
	}).Info("Создан кошелёк администратора")
	return w, nil
}

// mergeStored дополняет кэш записями из хранилища; записи в памяти приоритетнее.
func (s *Service) mergeStored(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	stored, err := s.repo.LoadAdminWallets(qctx)
	if err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).
			Warn("Не удалось загрузить кошельки администраторов, используем память")
		return
	}
	for _, w := range stored {
		if _, ok := s.cache[w.key()]; !ok {
			s.cache[w.key()] = w
		}
	}
}

// save сохраняет кошелёк; false — если хранилище недоступно.
func (s *Service) save(ctx context.Context, w *Wallet) bool {
	qctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := s.repo.SaveAdminWallet(qctx, w.clone()); err != nil {
		log.WithError(fmt.Errorf("%w: %v", common.ErrPersistenceUnavailable, err)).WithFields(log.Fields{
			"admin_id": w.AdminID,
			"chat_id":  w.ChatID,
		}).Warn("Не удалось сохранить кошелёк администратора")
		return false
	}
	return true
}
