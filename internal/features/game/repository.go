// Package game — repository.go описывает, что игре нужно от хранилища.
package game

import "context"

// Repository — хранилище раундов, ставок и истории матчей.
// LoadGameSession возвращает common.ErrNotFound для чата без записей.
// ListMatchHistory возвращает последние limit матчей, от старых к новым.
// ListActiveChats возвращает чаты с сохранённым незавершённым раундом.
type Repository interface {
	LoadGameSession(ctx context.Context, chatID int64) (*ChatRecord, error)
	SaveGameSession(ctx context.Context, rec *ChatRecord) error
	AppendBetRecord(ctx context.Context, rec *BetRecord) error
	AppendMatchHistory(ctx context.Context, rec *MatchRecord, keep int) error
	ListMatchHistory(ctx context.Context, chatID int64, limit int) ([]*MatchRecord, error)
	ListActiveChats(ctx context.Context) ([]int64, error)
}
