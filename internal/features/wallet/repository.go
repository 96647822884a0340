// Package wallet — repository.go описывает, что кошелькам нужно от хранилища.
// Реализации живут в internal/db (postgres, sqlite, memory).
package wallet

import "context"

// Repository — хранилище кошельков игроков.
// LoadWallet возвращает common.ErrNotFound, если кошелька ещё нет.
type Repository interface {
	LoadWallet(ctx context.Context, playerID, chatID int64) (*Wallet, error)
	SaveWallet(ctx context.Context, w *Wallet) error
	TopWallets(ctx context.Context, chatID int64, limit int) ([]*Wallet, error)
}
