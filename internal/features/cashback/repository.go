// Package cashback — repository.go описывает, что кэшбэку нужно от хранилища.
package cashback

import (
	"context"
	"time"
)

// Repository — источник проигрышей и отметка об оплаченных днях.
// SumLosses возвращает суммы проигравших ставок (payout = 0) с created_at в [from, to).
// ClaimCashbackDay атомарно отмечает день; false — день уже был отмечен.
type Repository interface {
	SumLosses(ctx context.Context, from, to time.Time) ([]Loss, error)
	ClaimCashbackDay(ctx context.Context, day time.Time) (bool, error)
}
