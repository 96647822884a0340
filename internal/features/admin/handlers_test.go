package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/db/memory"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

type fakeSender struct {
	texts []string
}

func (s *fakeSender) Send(_ context.Context, _ int64, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSender) last() string {
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

func newHandler(t *testing.T, passwordHash string) (*admin.Handler, *fakeSender, *wallet.Service) {
	t.Helper()
	store := memory.New()
	wallets := wallet.NewService(store, 0)
	s := admin.NewService(store, wallets, nil, 10000, []int64{1}, passwordHash)
	sender := &fakeSender{}
	return admin.NewHandler(s, sender, time.UTC), sender, wallets
}

func TestHandleAdjustByReply(t *testing.T) {
	h, sender, wallets := newHandler(t, "")
	ctx := context.Background()

	h.HandleAdjust(ctx, chatID, 1, 42, []string{"2500"})
	assert.Contains(t, sender.last(), "+2 500 очков")
	assert.Contains(t, sender.last(), "7 500 очков")
	assert.Equal(t, int64(2500), walletSnapshot(t, wallets, 42, chatID).MainBalance)

	h.HandleAdjust(ctx, chatID, 1, 0, []string{"42", "-5000"})
	assert.Contains(t, sender.last(), "-2 500 очков")
	assert.Zero(t, walletSnapshot(t, wallets, 42, chatID).MainBalance)

	h.HandleAdjust(ctx, chatID, 1, 0, []string{"42", "8000"})
	assert.Contains(t, sender.last(), "недостаточно очков")

	h.HandleAdjust(ctx, chatID, 1, 0, []string{"oops"})
	assert.Contains(t, sender.last(), "Использование")
}

func TestHandleAdjustRejectsNonAdmin(t *testing.T) {
	h, sender, wallets := newHandler(t, "")
	ctx := context.Background()

	h.HandleAdjust(ctx, chatID, 99, 42, []string{"100"})
	assert.Contains(t, sender.last(), "нет прав")
	assert.Zero(t, walletSnapshot(t, wallets, 42, chatID).MainBalance)
}

func TestPrivateCommandsNeedSession(t *testing.T) {
	hash, err := admin.HashPassword("s3cret")
	require.NoError(t, err)
	h, sender, _ := newHandler(t, hash)
	ctx := context.Background()

	h.HandleRefill(ctx, 1, 1, true, []string{"all"})
	assert.Contains(t, sender.last(), "/login")

	h.HandleLogin(ctx, 1, 1, []string{"wrong"})
	assert.Contains(t, sender.last(), "неверный пароль")

	h.HandleLogin(ctx, 1, 1, []string{"s3cret"})
	assert.Contains(t, sender.last(), "Аутентификация успешна")

	h.HandleRefill(ctx, 1, 1, true, []string{"all"})
	assert.Contains(t, sender.last(), "во всех чатах")

	h.HandleWallets(ctx, 1, 1, true, nil)
	assert.Contains(t, sender.last(), "Использование")

	h.HandleLogout(ctx, 1, 1)
	h.HandleWallets(ctx, 1, 1, true, []string{"-3003"})
	assert.Contains(t, sender.last(), "/login")
}

func TestGroupWalletsAndRefill(t *testing.T) {
	h, sender, _ := newHandler(t, "")
	ctx := context.Background()

	h.HandleWallets(ctx, chatID, 1, false, nil)
	assert.Contains(t, sender.last(), "пока нет")

	h.HandleAdjust(ctx, chatID, 1, 42, []string{"1000"})
	h.HandleWallets(ctx, chatID, 1, false, nil)
	assert.Contains(t, sender.last(), "id1: 9 000 очков")

	h.HandleRefill(ctx, chatID, 1, false, nil)
	assert.Contains(t, sender.last(), "в чате -3003")

	h.HandleWallets(ctx, chatID, 1, false, nil)
	assert.Contains(t, sender.last(), "id1: 10 000 очков, пополнен")
}

func TestRefillText(t *testing.T) {
	text := admin.RefillText(&admin.RefillReport{Ceiling: 10000, Refilled: 3, Failed: 1})
	assert.Contains(t, text, "во всех чатах")
	assert.Contains(t, text, "10 000 очков: 3")
	assert.Contains(t, text, "Не сохранено в хранилище: 1")
}
