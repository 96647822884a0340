// Package postgres хранит данные игры в PostgreSQL.
// Пул pgxpool общий для всех горутин; схема накатывается golang-migrate
// из встроенных файлов migrations/*.sql.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/config"
)

// NewPool создаёт пул соединений и проверяет, что база отвечает.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return newPool(ctx, cfg.DatabaseDSN(), cfg.DBMaxConns, cfg.DBMinConns)
}

func newPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", err)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}
