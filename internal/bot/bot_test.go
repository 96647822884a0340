package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/bot/filters"
	"github.com/rgndice/dicebot/internal/config"
	"github.com/rgndice/dicebot/internal/db/memory"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
	"github.com/rgndice/dicebot/internal/jobs"
)

func walletSnapshot(t *testing.T, wallets *wallet.Service, playerID, chatID int64) wallet.Snapshot {
	t.Helper()
	snap, err := wallets.Snapshot(context.Background(), playerID, chatID)
	require.NoError(t, err)
	return snap
}

const (
	groupID int64 = -1009
	adminID int64 = 1
)

type fakeTransport struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeTransport) Updates(context.Context, int) (<-chan telego.Update, error) {
	ch := make(chan telego.Update)
	close(ch)
	return ch, nil
}

func (f *fakeTransport) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type testBot struct {
	*Bot
	transport *fakeTransport
	store     *memory.Store
	wallets   *wallet.Service
	rounds    *jobs.RoundRunner
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	cfg := &config.Config{
		AdminIDs:                []int64{adminID},
		BotMaxInflight:          4,
		BotUpdateTimeoutSeconds: 1,
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
	}

	store := memory.New()
	transport := &fakeTransport{}
	wallets := wallet.NewService(store, 0)
	roller := game.RollerFunc(func(context.Context, int64) (game.Dice, error) {
		return game.Dice{3, 4}, nil
	})
	games := game.NewService(store, wallets, roller, nil, game.Rules{MinBet: 100, MaxBet: 10000})
	rounds := jobs.NewRoundRunner(games, jobs.RoundTiming{BetWindow: time.Hour})
	t.Cleanup(rounds.Shutdown)

	referrals := referral.NewService(store, wallets, nil, 500)
	admins := admin.NewService(store, wallets, nil, 10000, cfg.AdminIDs, "")

	b, err := New(transport, cfg, "dice_bot", Handlers{
		Game:     game.NewHandler(games, wallets, rounds, transport, time.Hour, time.UTC),
		Referral: referral.NewHandler(referrals, transport, "dice_bot"),
		Admin:    admin.NewHandler(admins, transport, time.UTC),
	}, admins, rounds, nil, filters.NewChatFilter([]int64{groupID}))
	require.NoError(t, err)
	t.Cleanup(b.stop)

	return &testBot{Bot: b, transport: transport, store: store, wallets: wallets, rounds: rounds}
}

func groupMessage(userID int64, username, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		Chat: telego.Chat{ID: groupID, Type: telego.ChatTypeSupergroup},
		From: &telego.User{ID: userID, Username: username, FirstName: username},
		Text: text,
	}}
}

func privateMessage(userID int64, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		Chat: telego.Chat{ID: userID, Type: telego.ChatTypePrivate},
		From: &telego.User{ID: userID, FirstName: "Игрок"},
		Text: text,
	}}
}

func TestGroupRoundFlow(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.store.SaveWallet(ctx, &wallet.Wallet{PlayerID: 7, ChatID: groupID, MainBalance: 1000, WelcomeGranted: true}))

	tb.handleUpdate(ctx, groupMessage(7, "alice", "!играть"))
	assert.True(t, tb.rounds.Running(groupID))

	tb.handleUpdate(ctx, groupMessage(7, "alice", "l 300"))
	assert.Contains(t, tb.transport.last(groupID), "300 очков на 🍀 LUCKY")

	tb.handleUpdate(ctx, groupMessage(7, "alice", "/status@dice_bot"))
	assert.Contains(t, tb.transport.last(groupID), "Раунд #1")

	tb.handleUpdate(ctx, groupMessage(7, "alice", "!стоп"))
	assert.Contains(t, tb.transport.last(groupID), "нет прав")
	assert.True(t, tb.rounds.Running(groupID))

	tb.handleUpdate(ctx, groupMessage(adminID, "boss", "!стоп"))
	assert.Contains(t, tb.transport.last(groupID), "остановлен администратором")
	assert.False(t, tb.rounds.Running(groupID))
	assert.Equal(t, int64(1000), walletSnapshot(t, tb.wallets, 7, groupID).MainBalance)
}

func TestShorthandWithoutRoundIsQuiet(t *testing.T) {
	tb := newTestBot(t)
	tb.handleUpdate(context.Background(), groupMessage(7, "alice", "b 500"))
	assert.Empty(t, tb.transport.last(groupID))
}

func TestGroupCommandsInPrivate(t *testing.T) {
	tb := newTestBot(t)
	tb.handleUpdate(context.Background(), privateMessage(7, "/play"))
	assert.Contains(t, tb.transport.last(7), "только в группе")

	tb.handleUpdate(context.Background(), privateMessage(7, "/start"))
	assert.Contains(t, tb.transport.last(7), "Игра в кости")
}

func TestOtherGroupsIgnored(t *testing.T) {
	tb := newTestBot(t)
	update := groupMessage(7, "alice", "!играть")
	update.Message.Chat.ID = -5555

	tb.handleUpdate(context.Background(), update)
	assert.False(t, tb.rounds.Running(-5555))
	assert.Empty(t, tb.transport.last(-5555))
}

func TestReferralDeepLinkAndJoin(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.handleUpdate(ctx, privateMessage(8, "/start ref_7"))
	assert.Contains(t, tb.transport.last(8), "Приглашение принято")

	join := telego.Update{Message: &telego.Message{
		Chat:           telego.Chat{ID: groupID, Type: telego.ChatTypeSupergroup},
		From:           &telego.User{ID: 8},
		NewChatMembers: []telego.User{{ID: 8, FirstName: "Новичок"}},
	}}
	tb.handleUpdate(ctx, join)

	assert.Contains(t, tb.transport.last(groupID), "Новичок")
	assert.Equal(t, int64(500), walletSnapshot(t, tb.wallets, 7, groupID).ReferralPoints)
}

func TestAdminAdjustByReply(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	update := groupMessage(adminID, "boss", "!начислить 700")
	update.Message.ReplyToMessage = &telego.Message{From: &telego.User{ID: 7}}
	tb.handleUpdate(ctx, update)

	assert.Contains(t, tb.transport.last(groupID), "+700 очков")
	assert.Equal(t, int64(700), walletSnapshot(t, tb.wallets, 7, groupID).MainBalance)
}

func TestAnnounceRound(t *testing.T) {
	tb := newTestBot(t)

	tb.announceRound(jobs.RoundEvent{
		Kind:   jobs.RoundSettled,
		ChatID: groupID,
		Settlement: &game.Settlement{
			ChatID: groupID, MatchID: 3, Dice: game.Dice{3, 4},
			Winning: game.CategoryLucky, Multiplier: "4.5",
		},
	})
	assert.Contains(t, tb.transport.last(groupID), "Раунд #3: 3 + 4 = 7")

	tb.announceRound(jobs.RoundEvent{
		Kind:       jobs.RoundsPaused,
		ChatID:     groupID,
		Settlement: &game.Settlement{ChatID: groupID, IdleRounds: 3},
	})
	assert.True(t, strings.HasPrefix(tb.transport.last(groupID), "💤 3 раунда"))
}

func TestNotifyAdmins(t *testing.T) {
	tb := newTestBot(t)
	tb.notifyAdmins(context.Background(), &admin.RefillReport{Ceiling: 10000, Refilled: 2})
	assert.Contains(t, tb.transport.last(adminID), "пополнены")
}

func TestAnnounceCashbackPerChat(t *testing.T) {
	tb := newTestBot(t)
	tb.announceCashback(context.Background(), &cashback.Report{Day: "2024-04-30", Percent: "10", Credits: []cashback.Credit{
		{PlayerID: 7, ChatID: groupID, Losses: 1500, Amount: 150},
		{PlayerID: 9, ChatID: -2002, Losses: 2000, Amount: 200},
	}})

	assert.Contains(t, tb.transport.last(groupID), "id7")
	assert.NotContains(t, tb.transport.last(groupID), "id9")
	assert.Contains(t, tb.transport.last(-2002), "id9")
}

type fakeThrower struct {
	values []int
	err    error
}

func (f *fakeThrower) SendDice(context.Context, int64) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[0]
	f.values = f.values[1:]
	return v, nil
}

func TestTelegramRoller(t *testing.T) {
	d, err := NewTelegramRoller(&fakeThrower{values: []int{6, 2}}).Roll(context.Background(), groupID)
	require.NoError(t, err)
	assert.Equal(t, game.Dice{6, 2}, d)

	_, err = NewTelegramRoller(&fakeThrower{err: errors.New("flood wait")}).Roll(context.Background(), groupID)
	assert.Error(t, err)
}
