package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/api"
	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/db/memory"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

const chatID int64 = -100500

type fixture struct {
	handler http.Handler
	store   *memory.Store
	games   *game.Service
	wallets *wallet.Service
	admins  *admin.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := admin.HashPassword("s3cret")
	require.NoError(t, err)

	store := memory.New()
	wallets := wallet.NewService(store, 0)
	roller := game.RollerFunc(func(context.Context, int64) (game.Dice, error) {
		return game.Dice{3, 4}, nil
	})
	games := game.NewService(store, wallets, roller, nil, game.Rules{MinBet: 100, MaxBet: 10000})
	admins := admin.NewService(store, wallets, nil, 10000, []int64{1}, hash)

	a := api.New(":0", []string{"*"}, games, wallets, admins, store)
	return &fixture{handler: a.Handler(), store: store, games: games, wallets: wallets, admins: admins}
}

func (f *fixture) do(t *testing.T, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (f *fixture) playRound(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveWallet(ctx, &wallet.Wallet{PlayerID: 7, ChatID: chatID, Username: "alice", MainBalance: 1000, WelcomeGranted: true}))

	_, err := f.games.StartRound(ctx, chatID)
	require.NoError(t, err)
	_, err = f.games.PlaceBet(ctx, chatID, 7, "alice", game.CategoryLucky, 300)
	require.NoError(t, err)
	require.NoError(t, f.games.CloseBetting(ctx, chatID))
	_, err = f.games.Settle(ctx, chatID)
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["storage"])

	f.store.SetFailing(true)
	rec = f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unavailable", decode[map[string]string](t, rec)["storage"])
}

func TestGameStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chats/-100500/game", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctx := context.Background()
	require.NoError(t, f.store.SaveWallet(ctx, &wallet.Wallet{PlayerID: 7, ChatID: chatID, MainBalance: 1000, WelcomeGranted: true}))
	_, err := f.games.StartRound(ctx, chatID)
	require.NoError(t, err)
	_, err = f.games.PlaceBet(ctx, chatID, 7, "alice", game.CategoryBig, 200)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/chats/-100500/game", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		MatchID int64                       `json:"match_id"`
		State   string                      `json:"state"`
		Bets    map[string]map[string]int64 `json:"bets"`
		Totals  map[string]int64            `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.MatchID)
	assert.Equal(t, "WAITING", body.State)
	assert.Equal(t, int64(200), body.Bets["BIG"]["7"])
	assert.Equal(t, int64(200), body.Totals["BIG"])
}

func TestInvalidChatID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/chats/abc/game", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryWalletAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	f.playRound(t)

	rec := f.do(t, http.MethodGet, "/api/chats/-100500/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]map[string]any](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "LUCKY", history[0]["winning"])
	assert.EqualValues(t, 1350, history[0]["total_paid"])

	rec = f.do(t, http.MethodGet, "/api/chats/-100500/wallets/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[wallet.Snapshot](t, rec)
	assert.Equal(t, int64(2050), snap.MainBalance)
	assert.Equal(t, int64(1), snap.TotalWins)

	rec = f.do(t, http.MethodGet, "/api/chats/-100500/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]map[string]any](t, rec)
	require.Len(t, top, 1)
	assert.EqualValues(t, 1, top[0]["rank"])
	assert.EqualValues(t, 7, top[0]["player_id"])
	assert.EqualValues(t, 2050, top[0]["main_balance"])
}

func TestUnknownWalletIsNotCreated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chats/-100500/wallets/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.store.LoadWallet(context.Background(), 99, chatID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, f.wallets.Top(context.Background(), chatID, 10))
}

func TestWalletStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.SetFailing(true)

	rec := f.do(t, http.MethodGet, "/api/chats/-100500/wallets/7", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefillRequiresPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.admins.Spend(ctx, 1, chatID, 4000)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/admin/refill", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/refill", map[string]string{"X-Admin-Password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/refill", map[string]string{"X-Admin-Password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[admin.RefillReport](t, rec)
	assert.Equal(t, 1, report.Refilled)
	assert.Equal(t, int64(10000), report.Ceiling)

	w, err := f.admins.EnsureWallet(ctx, 1, chatID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), w.Points)
}

func TestRefillSingleChatBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.admins.Spend(ctx, 1, chatID, 100)
	require.NoError(t, err)
	_, err = f.admins.Spend(ctx, 1, -42, 100)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/refill", strings.NewReader(`{"chat_id":-42}`))
	req.Header.Set("X-Admin-Password", "s3cret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[admin.RefillReport](t, rec).Refilled)

	w, err := f.admins.EnsureWallet(ctx, 1, chatID)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), w.Points)
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", map[string]string{"Origin": "https://example.org"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
