// Package memory — хранилище в памяти процесса.
// Используется при STORAGE_DRIVER=memory и в тестах; умеет имитировать
// недоступность хранилища через SetFailing.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// ErrUnavailable возвращается всеми методами, пока включён SetFailing.
var ErrUnavailable = errors.New("хранилище в памяти недоступно")

// Store хранит все записи в map под одной блокировкой.
// Записи раундов и истории хранятся в JSON, как в SQL-хранилищах.
type Store struct {
	mu      sync.RWMutex
	failing bool

	wallets   map[wallet.Key]*wallet.Wallet
	chats     map[int64][]byte
	bets      []*game.BetRecord
	history   map[int64][][]byte
	referrals map[int64]*referral.Record
	admins    map[admin.Key]*admin.Wallet
	cashback  map[string]bool
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		wallets:   make(map[wallet.Key]*wallet.Wallet),
		chats:     make(map[int64][]byte),
		history:   make(map[int64][][]byte),
		referrals: make(map[int64]*referral.Record),
		admins:    make(map[admin.Key]*admin.Wallet),
		cashback:  make(map[string]bool),
	}
}

// SetFailing включает или выключает имитацию сбоя.
func (s *Store) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Ping проверяет доступность.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return ErrUnavailable
	}
	return nil
}

// Close ничего не делает.
func (s *Store) Close() error { return nil }

// --- кошельки ---

func (s *Store) LoadWallet(_ context.Context, playerID, chatID int64) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	w, ok := s.wallets[wallet.Key{PlayerID: playerID, ChatID: chatID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return w.Clone(), nil
}

func (s *Store) SaveWallet(_ context.Context, w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	s.wallets[w.Key()] = w.Clone()
	return nil
}

func (s *Store) TopWallets(_ context.Context, chatID int64, limit int) ([]*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	var out []*wallet.Wallet
	for k, w := range s.wallets {
		if k.ChatID == chatID {
			out = append(out, w.Clone())
		}
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
	return out, nil
}

// --- раунды ---

func (s *Store) LoadGameSession(_ context.Context, chatID int64) (*game.ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	data, ok := s.chats[chatID]
	if !ok {
		return nil, common.ErrNotFound
	}
	var rec game.ChatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveGameSession(_ context.Context, rec *game.ChatRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	s.chats[rec.ChatID] = data
	return nil
}

func (s *Store) ListActiveChats(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	var ids []int64
	for chatID, data := range s.chats {
		var rec game.ChatRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		if rec.Session != nil {
			ids = append(ids, chatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) AppendBetRecord(_ context.Context, rec *game.BetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *rec
	s.bets = append(s.bets, &cp)
	return nil
}

// BetRecords возвращает записанные ставки чата (для тестов и отладки).
func (s *Store) BetRecords(chatID int64) []*game.BetRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*game.BetRecord
	for _, b := range s.bets {
		if b.ChatID == chatID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) AppendMatchHistory(_ context.Context, rec *game.MatchRecord, keep int) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	h := append(s.history[rec.ChatID], data)
	if keep > 0 && len(h) > keep {
		h = h[len(h)-keep:]
	}
	s.history[rec.ChatID] = h
	return nil
}

func (s *Store) ListMatchHistory(_ context.Context, chatID int64, limit int) ([]*game.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	h := s.history[chatID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]*game.MatchRecord, 0, len(h))
	for _, data := range h {
		var rec game.MatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}

// --- рефералы ---

func (s *Store) LoadReferral(_ context.Context, referredID int64) (*referral.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	rec, ok := s.referrals[referredID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) SaveReferral(_ context.Context, rec *referral.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *rec
	s.referrals[rec.ReferredID] = &cp
	return nil
}

// --- кошельки администраторов ---

func (s *Store) LoadAdminWallets(context.Context) ([]*admin.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	out := make([]*admin.Wallet, 0, len(s.admins))
	for _, w := range s.admins {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].AdminID < out[j].AdminID
	})
	return out, nil
}

func (s *Store) LoadAdminWallet(_ context.Context, adminID, chatID int64) (*admin.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	w, ok := s.admins[admin.Key{AdminID: adminID, ChatID: chatID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Store) SaveAdminWallet(_ context.Context, w *admin.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *w
	s.admins[admin.Key{AdminID: w.AdminID, ChatID: w.ChatID}] = &cp
	return nil
}

// --- кэшбэк ---

func (s *Store) SumLosses(_ context.Context, from, to time.Time) ([]cashback.Loss, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, ErrUnavailable
	}

	type key struct{ chatID, playerID int64 }
	sums := make(map[key]int64)
	for _, b := range s.bets {
		if b.Payout != 0 || b.CreatedAt.Before(from) || !b.CreatedAt.Before(to) {
			continue
		}
		sums[key{b.ChatID, b.PlayerID}] += b.Stake
	}

	out := make([]cashback.Loss, 0, len(sums))
	for k, amount := range sums {
		out = append(out, cashback.Loss{PlayerID: k.playerID, ChatID: k.chatID, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *Store) ClaimCashbackDay(_ context.Context, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, ErrUnavailable
	}
	d := day.Format("2006-01-02")
	if s.cashback[d] {
		return false, nil
	}
	s.cashback[d] = true
	return true, nil
}
