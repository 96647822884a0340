// Package db выбирает хранилище при старте: PostgreSQL, SQLite или память.
// Игровое ядро работает только с интерфейсом Store и не знает, какое хранилище под ним.
package db

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/config"
	"github.com/rgndice/dicebot/internal/db/memory"
	"github.com/rgndice/dicebot/internal/db/postgres"
	"github.com/rgndice/dicebot/internal/db/sqlite"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// Store — всё, что фичам нужно от хранилища.
type Store interface {
	wallet.Repository
	game.Repository
	referral.Repository
	admin.Repository
	cashback.Repository

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// Open открывает хранилище по STORAGE_DRIVER и применяет миграции.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
		}
		if err := postgres.MigrateUp(cfg.DatabaseDSN()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций PostgreSQL: %w", err)
		}
		return postgres.NewStore(pool), nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия SQLite: %w", err)
		}
		return store, nil

	case config.StorageMemory:
		log.Warn("Используется хранилище в памяти: данные пропадут при перезапуске")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("неизвестный STORAGE_DRIVER %q", cfg.StorageDriver)
}
