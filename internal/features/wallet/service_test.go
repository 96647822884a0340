package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/common"
)

// fakeRepo — хранилище в памяти с возможностью «сломаться».
type fakeRepo struct {
	mu      sync.Mutex
	wallets map[Key]*Wallet
	saves   int
	failAll bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{wallets: make(map[Key]*Wallet)}
}

func (r *fakeRepo) LoadWallet(_ context.Context, playerID, chatID int64) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("connection refused")
	}
	w, ok := r.wallets[Key{playerID, chatID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return w.Clone(), nil
}

func (r *fakeRepo) SaveWallet(_ context.Context, w *Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("connection refused")
	}
	r.saves++
	r.wallets[w.Key()] = w.Clone()
	return nil
}

func (r *fakeRepo) TopWallets(_ context.Context, chatID int64, limit int) ([]*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("connection refused")
	}
	var out []*Wallet
	for k, w := range r.wallets {
		if k.ChatID == chatID {
			out = append(out, w.Clone())
		}
	}
	return out, nil
}

func snapshot(t *testing.T, s *Service, playerID, chatID int64) Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), playerID, chatID)
	require.NoError(t, err)
	return snap
}

func TestServiceCreatesWalletWithWelcomeBonus(t *testing.T) {
	repo := newFakeRepo()
	s := NewService(repo, 500)

	w, err := s.Get(context.Background(), 1, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.BonusPoints)
	assert.True(t, w.WelcomeGranted)

	// Второй раз бонус не начисляется
	w, err = s.Get(context.Background(), 1, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.BonusPoints)

	stored, err := repo.LoadWallet(context.Background(), 1, -100)
	require.NoError(t, err)
	assert.True(t, stored.WelcomeGranted)
}

func TestServiceLoadsExistingWallet(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{7, -1}] = &Wallet{PlayerID: 7, ChatID: -1, ReferralPoints: 200, MainBalance: 1000, WelcomeGranted: true}
	s := NewService(repo, 500)

	c, w, err := s.Debit(context.Background(), Key{7, -1}, "neo", 250)
	require.NoError(t, err)

	assert.Equal(t, Consumption{Referral: 200, Main: 50}, c)
	assert.Equal(t, int64(0), w.ReferralPoints)
	assert.Equal(t, int64(950), w.MainBalance)
	assert.Equal(t, int64(1), w.TotalBets)
	assert.Equal(t, "neo", w.Username)
	assert.Equal(t, int64(950), repo.wallets[Key{7, -1}].MainBalance)
}

func TestServiceFailedUpdateDoesNotMutate(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{7, -1}] = &Wallet{PlayerID: 7, ChatID: -1, MainBalance: 100}
	s := NewService(repo, 0)

	_, w, err := s.Debit(context.Background(), Key{7, -1}, "", 150)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(100), w.MainBalance)
	assert.Equal(t, int64(0), w.TotalBets)
	assert.Equal(t, Snapshot{MainBalance: 100}, snapshot(t, s, 7, -1))
}

func TestServiceSurvivesStorageOutage(t *testing.T) {
	repo := newFakeRepo()
	s := NewService(repo, 0)
	_, err := s.Get(context.Background(), 1, -1)
	require.NoError(t, err)

	repo.failAll = true
	_, w, err := s.AdjustMain(context.Background(), Key{1, -1}, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.MainBalance)

	// Изменение в памяти сохраняется, несмотря на сбой
	assert.Equal(t, int64(300), snapshot(t, s, 1, -1).MainBalance)

	repo.failAll = false
	_, _, err = s.AdjustMain(context.Background(), Key{1, -1}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(301), repo.wallets[Key{1, -1}].MainBalance)
}

func TestServiceConcurrentDebitsAreSerialized(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 1000}
	s := NewService(repo, 0)

	var wg sync.WaitGroup
	var okCount int
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Debit(context.Background(), Key{1, -1}, "", 100); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, okCount)
	assert.Equal(t, int64(0), snapshot(t, s, 1, -1).MainBalance)
}

func TestServiceAdjustMainNegative(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 80, BonusPoints: 40}
	s := NewService(repo, 0)

	applied, w, err := s.AdjustMain(context.Background(), Key{1, -1}, -100)
	require.NoError(t, err)
	assert.Equal(t, int64(-80), applied)
	assert.Equal(t, int64(0), w.MainBalance)
	assert.Equal(t, int64(40), w.BonusPoints)
}

func TestServiceTopMergesMemoryAndStorage(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 100}
	repo.wallets[Key{2, -1}] = &Wallet{PlayerID: 2, ChatID: -1, MainBalance: 500}
	repo.wallets[Key{3, -2}] = &Wallet{PlayerID: 3, ChatID: -2, MainBalance: 9000}
	s := NewService(repo, 0)
	_, err := s.Get(context.Background(), 4, -1)
	require.NoError(t, err)

	repo.failAll = true
	_, _, err = s.AdjustMain(context.Background(), Key{4, -1}, 700)
	require.NoError(t, err)

	top := s.Top(context.Background(), -1, 10)
	require.Len(t, top, 1)
	assert.Equal(t, int64(4), top[0].PlayerID)

	repo.failAll = false
	top = s.Top(context.Background(), -1, 2)
	require.Len(t, top, 2)
	assert.Equal(t, int64(4), top[0].PlayerID)
	assert.Equal(t, int64(2), top[1].PlayerID)
}

func TestServiceFailedReadKeepsStoredBalance(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 5000, WelcomeGranted: true}
	s := NewService(repo, 500)

	repo.failAll = true
	_, err := s.Snapshot(context.Background(), 1, -1)
	require.ErrorIs(t, err, common.ErrPersistenceUnavailable)

	_, _, err = s.Debit(context.Background(), Key{1, -1}, "", 100)
	require.ErrorIs(t, err, common.ErrPersistenceUnavailable)

	repo.failAll = false
	_, w, err := s.AdjustMain(context.Background(), Key{1, -1}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5001), w.MainBalance)
	assert.Equal(t, int64(0), w.BonusPoints)
	assert.Equal(t, int64(5001), repo.wallets[Key{1, -1}].MainBalance)
}

func TestServiceDeliverReplaysAfterOutage(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 5000, WelcomeGranted: true}
	s := NewService(repo, 0)

	repo.failAll = true
	w, err := s.Deliver(context.Background(), Key{1, -1}, func(w *Wallet) {
		Credit(w, 195, w.LastActive)
		w.TotalWins++
	})
	require.ErrorIs(t, err, common.ErrPersistenceUnavailable)
	assert.Nil(t, w)
	assert.Equal(t, int64(5000), repo.wallets[Key{1, -1}].MainBalance)

	repo.failAll = false
	snap := snapshot(t, s, 1, -1)
	assert.Equal(t, int64(5195), snap.MainBalance)
	assert.Equal(t, int64(1), snap.TotalWins)
	assert.Equal(t, int64(5195), repo.wallets[Key{1, -1}].MainBalance)

	// Повторное чтение не применяет зачисление второй раз
	assert.Equal(t, int64(5195), snapshot(t, s, 1, -1).MainBalance)
}

func TestServiceLookupDoesNotCreate(t *testing.T) {
	repo := newFakeRepo()
	repo.wallets[Key{1, -1}] = &Wallet{PlayerID: 1, ChatID: -1, MainBalance: 70, WelcomeGranted: true}
	s := NewService(repo, 500)

	_, err := s.Lookup(context.Background(), 2, -1)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.NotContains(t, repo.wallets, Key{2, -1})
	assert.Equal(t, 0, repo.saves)

	w, err := s.Lookup(context.Background(), 1, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(70), w.MainBalance)

	repo.failAll = true
	_, err = s.Lookup(context.Background(), 3, -1)
	assert.ErrorIs(t, err, common.ErrPersistenceUnavailable)
}
