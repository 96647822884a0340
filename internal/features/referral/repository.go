package referral

import "context"

// Repository хранит записи о приглашениях.
// LoadReferral возвращает common.ErrNotFound, если приглашённый ещё не встречался.
type Repository interface {
	LoadReferral(ctx context.Context, referredID int64) (*Record, error)
	SaveReferral(ctx context.Context, rec *Record) error
}
