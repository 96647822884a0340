package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/common"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDebitOrder(t *testing.T) {
	tests := []struct {
		name   string
		wallet Wallet
		amount int64
		want   Consumption
		after  Wallet
	}{
		{
			name:   "referral then main",
			wallet: Wallet{ReferralPoints: 200, MainBalance: 1000},
			amount: 250,
			want:   Consumption{Referral: 200, Main: 50},
			after:  Wallet{ReferralPoints: 0, MainBalance: 950},
		},
		{
			name:   "all three currencies",
			wallet: Wallet{ReferralPoints: 100, BonusPoints: 100, MainBalance: 1000},
			amount: 300,
			want:   Consumption{Referral: 100, Bonus: 100, Main: 100},
			after:  Wallet{MainBalance: 900},
		},
		{
			name:   "referral only",
			wallet: Wallet{ReferralPoints: 500, BonusPoints: 100, MainBalance: 100},
			amount: 400,
			want:   Consumption{Referral: 400},
			after:  Wallet{ReferralPoints: 100, BonusPoints: 100, MainBalance: 100},
		},
		{
			name:   "bonus before main",
			wallet: Wallet{BonusPoints: 500, MainBalance: 100},
			amount: 550,
			want:   Consumption{Bonus: 500, Main: 50},
			after:  Wallet{MainBalance: 50},
		},
		{
			name:   "exact balance",
			wallet: Wallet{ReferralPoints: 1, BonusPoints: 2, MainBalance: 3},
			amount: 6,
			want:   Consumption{Referral: 1, Bonus: 2, Main: 3},
			after:  Wallet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.wallet
			before := AvailableToBet(&w)

			got, err := Debit(&w, tt.amount, testNow)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.amount, got.Total())
			assert.Equal(t, tt.after.ReferralPoints, w.ReferralPoints)
			assert.Equal(t, tt.after.BonusPoints, w.BonusPoints)
			assert.Equal(t, tt.after.MainBalance, w.MainBalance)
			assert.Equal(t, before-tt.amount, AvailableToBet(&w))
			assert.Equal(t, testNow, w.LastActive)
		})
	}
}

func TestDebitInsufficientFundsLeavesWalletUnchanged(t *testing.T) {
	w := Wallet{ReferralPoints: 10, BonusPoints: 20, MainBalance: 30}
	orig := w

	for _, amount := range []int64{61, 100, 1 << 40} {
		_, err := Debit(&w, amount, testNow)
		require.ErrorIs(t, err, common.ErrInsufficientFunds)
		assert.Equal(t, orig, w)
	}
}

func TestDebitRejectsNonPositive(t *testing.T) {
	w := Wallet{MainBalance: 100}
	_, err := Debit(&w, 0, testNow)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = Debit(&w, -5, testNow)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
	assert.Equal(t, int64(100), w.MainBalance)
}

func TestCreditGoesToMainOnly(t *testing.T) {
	w := Wallet{ReferralPoints: 5, BonusPoints: 7, MainBalance: 950}
	Credit(&w, 487, testNow)

	assert.Equal(t, int64(1437), w.MainBalance)
	assert.Equal(t, int64(5), w.ReferralPoints)
	assert.Equal(t, int64(7), w.BonusPoints)
	assert.Equal(t, testNow, w.LastActive)
}

func TestRefundRestoresEachCurrency(t *testing.T) {
	w := Wallet{ReferralPoints: 200, BonusPoints: 50, MainBalance: 1000}
	orig := w

	c, err := Debit(&w, 400, testNow)
	require.NoError(t, err)
	Refund(&w, c, testNow)

	assert.Equal(t, orig.ReferralPoints, w.ReferralPoints)
	assert.Equal(t, orig.BonusPoints, w.BonusPoints)
	assert.Equal(t, orig.MainBalance, w.MainBalance)
}

func TestTakeMainNeverGoesNegative(t *testing.T) {
	w := Wallet{MainBalance: 300, BonusPoints: 100}
	assert.Equal(t, int64(300), TakeMain(&w, 1000, testNow))
	assert.Equal(t, int64(0), w.MainBalance)
	assert.Equal(t, int64(100), w.BonusPoints)
	assert.Equal(t, int64(0), TakeMain(&w, 10, testNow))
}
