// Package admin — repository.go описывает, что админке нужно от хранилища.
package admin

import "context"

// Repository хранит кошельки администраторов.
// LoadAdminWallet возвращает common.ErrNotFound, если кошелька ещё нет.
type Repository interface {
	LoadAdminWallets(ctx context.Context) ([]*Wallet, error)
	LoadAdminWallet(ctx context.Context, adminID, chatID int64) (*Wallet, error)
	SaveAdminWallet(ctx context.Context, w *Wallet) error
}
