package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "10, 20")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 20}, cfg.AdminIDs)
	assert.Empty(t, cfg.AllowedChatIDs)
	assert.Equal(t, int64(100), cfg.GameMinBet)
	assert.Equal(t, int64(1000000), cfg.GameMaxBet)
	assert.True(t, cfg.GameMultiplierBig.Equal(decimal.RequireFromString("1.95")))
	assert.True(t, cfg.GameMultiplierLucky.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, int64(10000000), cfg.AdminWalletCeiling)
	assert.Equal(t, "06:00", cfg.AdminRefillTime)
	assert.Equal(t, "Asia/Yangon", cfg.AppTimezone)
	assert.True(t, cfg.GameCashbackPercent.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1000), cfg.GameCashbackMinLoss)
	assert.Equal(t, "00:05", cfg.GameCashbackTime)
	assert.True(t, cfg.IsAdmin(20))
	assert.False(t, cfg.IsAdmin(30))
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "STORAGE_DRIVER", "mongo"},
		{"min above max", "GAME_MIN_BET", "5000000"},
		{"zero multiplier", "GAME_MULTIPLIER_SMALL", "0"},
		{"bad refill time", "ADMIN_REFILL_TIME", "6am"},
		{"bad admin ids", "ADMIN_IDS", "1,x"},
		{"cashback above 100", "GAME_CASHBACK_PERCENT", "150"},
		{"bad cashback time", "GAME_CASHBACK_TIME", "midnight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
			t.Setenv("STORAGE_DRIVER", "memory")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseInt64CSV(t *testing.T) {
	ids, err := parseInt64CSV(" -100123, 42 ,")
	require.NoError(t, err)
	assert.Equal(t, []int64{-100123, 42}, ids)

	ids, err = parseInt64CSV("")
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestCORSOrigins(t *testing.T) {
	cfg := &Config{APICORSOrigins: "https://a.example, https://b.example"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}
