package game

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCoversEveryTotal(t *testing.T) {
	want := map[int]Category{
		2: CategorySmall, 3: CategorySmall, 4: CategorySmall, 5: CategorySmall, 6: CategorySmall,
		7: CategoryLucky,
		8: CategoryBig, 9: CategoryBig, 10: CategoryBig, 11: CategoryBig, 12: CategoryBig,
	}
	for total := 2; total <= 12; total++ {
		got, err := Classify(total)
		require.NoError(t, err, "сумма %d", total)
		assert.Equal(t, want[total], got, "сумма %d", total)
	}
}

func TestClassifyRejectsOutOfRange(t *testing.T) {
	for _, total := range []int{0, 1, 13, -5} {
		_, err := Classify(total)
		assert.Error(t, err, "сумма %d", total)
	}
}

func TestPayoutFloors(t *testing.T) {
	m := DefaultMultipliers()

	tests := []struct {
		name     string
		stake    int64
		category Category
		want     int64
	}{
		{"BIG 250", 250, CategoryBig, 487},
		{"SMALL 100", 100, CategorySmall, 195},
		{"SMALL 101", 101, CategorySmall, 196},
		{"LUCKY 100", 100, CategoryLucky, 450},
		{"LUCKY 333", 333, CategoryLucky, 1498},
		{"BIG 1", 1, CategoryBig, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Payout(tt.stake, m[tt.category]))
		})
	}
}

func TestPayoutCustomMultiplier(t *testing.T) {
	assert.Equal(t, int64(300), Payout(100, decimal.NewFromInt(3)))
	assert.Equal(t, int64(0), Payout(0, decimal.RequireFromString("1.95")))
}
