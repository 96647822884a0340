// Package sqlite хранит данные игры в одном файле SQLite (STORAGE_DRIVER=sqlite).
// Подходит для одного процесса без отдельного сервера БД.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store реализует репозитории всех фич поверх SQLite.
type Store struct {
	db *sql.DB
}

// Open открывает файл базы в режиме WAL и применяет миграции.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}
	// Одно соединение: записи в SQLite идут строго по одной.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("база %s недоступна: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", path).Info("SQLite открыт")
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("ошибка драйвера миграций: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка чтения миграций: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("ошибка создания migrate: %w", err)
	}
	// m.Close закрыл бы и db, поэтому закрываем только источник.
	defer source.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}

// Ping проверяет соединение.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return err
}

// --- wallets ---

const walletColumns = `player_id, chat_id, username, main_balance, referral_points, bonus_points,
	total_bets, total_wins, total_losses, welcome_granted, last_active`

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := row.Scan(
		&w.PlayerID, &w.ChatID, &w.Username, &w.MainBalance, &w.ReferralPoints, &w.BonusPoints,
		&w.TotalBets, &w.TotalWins, &w.TotalLosses, &w.WelcomeGranted, &w.LastActive,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) LoadWallet(ctx context.Context, playerID, chatID int64) (*wallet.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE player_id = ? AND chat_id = ?`, playerID, chatID)
	w, err := scanWallet(row)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (s *Store) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id, chat_id) DO UPDATE SET
			username = excluded.username,
			main_balance = excluded.main_balance,
			referral_points = excluded.referral_points,
			bonus_points = excluded.bonus_points,
			total_bets = excluded.total_bets,
			total_wins = excluded.total_wins,
			total_losses = excluded.total_losses,
			welcome_granted = excluded.welcome_granted,
			last_active = excluded.last_active`,
		w.PlayerID, w.ChatID, w.Username, w.MainBalance, w.ReferralPoints, w.BonusPoints,
		w.TotalBets, w.TotalWins, w.TotalLosses, w.WelcomeGranted, w.LastActive,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кошелька: %w", err)
	}
	return nil
}

func (s *Store) TopWallets(ctx context.Context, chatID int64, limit int) ([]*wallet.Wallet, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+walletColumns+` FROM wallets
		WHERE chat_id = ? ORDER BY main_balance DESC, player_id LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса лидеров: %w", err)
	}
	defer rows.Close()

	var out []*wallet.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// --- game ---

func (s *Store) LoadGameSession(ctx context.Context, chatID int64) (*game.ChatRecord, error) {
	var rec game.ChatRecord
	var session sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, last_match_id, idle_rounds, session, updated_at FROM game_chats WHERE chat_id = ?`, chatID,
	).Scan(&rec.ChatID, &rec.LastMatchID, &rec.IdleRounds, &session, &rec.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if session.Valid && session.String != "" {
		var snap game.SessionSnapshot
		if err := json.Unmarshal([]byte(session.String), &snap); err != nil {
			return nil, fmt.Errorf("повреждён снимок раунда чата %d: %w", chatID, err)
		}
		rec.Session = &snap
	}
	return &rec, nil
}

func (s *Store) SaveGameSession(ctx context.Context, rec *game.ChatRecord) error {
	var session sql.NullString
	if rec.Session != nil {
		data, err := json.Marshal(rec.Session)
		if err != nil {
			return err
		}
		session = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_chats (chat_id, last_match_id, idle_rounds, session, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			last_match_id = excluded.last_match_id,
			idle_rounds = excluded.idle_rounds,
			session = excluded.session,
			updated_at = excluded.updated_at`,
		rec.ChatID, rec.LastMatchID, rec.IdleRounds, session, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения раунда: %w", err)
	}
	return nil
}

func (s *Store) ListActiveChats(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM game_chats WHERE session IS NOT NULL ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных чатов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AppendBetRecord(ctx context.Context, rec *game.BetRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bets (id, chat_id, match_id, player_id, category, stake,
			referral_consumed, bonus_consumed, payout, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.MatchID, rec.PlayerID, rec.Category.String(), rec.Stake,
		rec.ReferralConsumed, rec.BonusConsumed, rec.Payout, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи ставки: %w", err)
	}
	return nil
}

func (s *Store) AppendMatchHistory(ctx context.Context, rec *game.MatchRecord, keep int) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO match_history (id, chat_id, match_id, record, settled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, match_id) DO UPDATE SET record = excluded.record, settled_at = excluded.settled_at`,
		rec.ID, rec.ChatID, rec.MatchID, string(data), rec.SettledAt,
	); err != nil {
		return fmt.Errorf("ошибка записи истории: %w", err)
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM match_history
			WHERE chat_id = ? AND match_id NOT IN (
				SELECT match_id FROM match_history WHERE chat_id = ? ORDER BY match_id DESC LIMIT ?
			)`, rec.ChatID, rec.ChatID, keep,
		); err != nil {
			return fmt.Errorf("ошибка очистки истории: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListMatchHistory(ctx context.Context, chatID int64, limit int) ([]*game.MatchRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM (
			SELECT record, match_id FROM match_history WHERE chat_id = ? ORDER BY match_id DESC LIMIT ?
		) ORDER BY match_id`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории: %w", err)
	}
	defer rows.Close()

	var out []*game.MatchRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec game.MatchRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("повреждена запись истории: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// --- referrals ---

func (s *Store) LoadReferral(ctx context.Context, referredID int64) (*referral.Record, error) {
	var rec referral.Record
	var awardedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT referred_id, referrer_id, chat_id, awarded, created_at, awarded_at
		FROM referrals WHERE referred_id = ?`, referredID,
	).Scan(&rec.ReferredID, &rec.ReferrerID, &rec.ChatID, &rec.Awarded, &rec.CreatedAt, &awardedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if awardedAt.Valid {
		rec.AwardedAt = awardedAt.Time
	}
	return &rec, nil
}

func (s *Store) SaveReferral(ctx context.Context, rec *referral.Record) error {
	awardedAt := sql.NullTime{Time: rec.AwardedAt, Valid: !rec.AwardedAt.IsZero()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referrals (referred_id, referrer_id, chat_id, awarded, created_at, awarded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (referred_id) DO UPDATE SET
			referrer_id = excluded.referrer_id,
			chat_id = excluded.chat_id,
			awarded = referrals.awarded OR excluded.awarded,
			awarded_at = COALESCE(referrals.awarded_at, excluded.awarded_at)`,
		rec.ReferredID, rec.ReferrerID, rec.ChatID, rec.Awarded, rec.CreatedAt, awardedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения приглашения: %w", err)
	}
	return nil
}

// --- admin wallets ---

func (s *Store) LoadAdminWallets(ctx context.Context) ([]*admin.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT admin_id, chat_id, points, last_refill FROM admin_wallets ORDER BY chat_id, admin_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кошельков администраторов: %w", err)
	}
	defer rows.Close()

	var out []*admin.Wallet
	for rows.Next() {
		var w admin.Wallet
		if err := rows.Scan(&w.AdminID, &w.ChatID, &w.Points, &w.LastRefill); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *Store) LoadAdminWallet(ctx context.Context, adminID, chatID int64) (*admin.Wallet, error) {
	var w admin.Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT admin_id, chat_id, points, last_refill FROM admin_wallets WHERE admin_id = ? AND chat_id = ?`,
		adminID, chatID,
	).Scan(&w.AdminID, &w.ChatID, &w.Points, &w.LastRefill)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (s *Store) SaveAdminWallet(ctx context.Context, w *admin.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_wallets (admin_id, chat_id, points, last_refill)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (admin_id, chat_id) DO UPDATE SET
			points = excluded.points,
			last_refill = excluded.last_refill`,
		w.AdminID, w.ChatID, w.Points, w.LastRefill,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кошелька администратора: %w", err)
	}
	return nil
}

// SumLosses суммирует проигравшие ставки за [from, to).
// created_at хранится строкой в UTC, поэтому границы тоже переводятся в UTC.
func (s *Store) SumLosses(ctx context.Context, from, to time.Time) ([]cashback.Loss, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, player_id, SUM(stake)
		FROM bets
		WHERE payout = 0 AND created_at >= ? AND created_at < ?
		GROUP BY chat_id, player_id
		ORDER BY chat_id, player_id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта проигрышей: %w", err)
	}
	defer rows.Close()

	var out []cashback.Loss
	for rows.Next() {
		var l cashback.Loss
		if err := rows.Scan(&l.ChatID, &l.PlayerID, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ClaimCashbackDay(ctx context.Context, day time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cashback_days (day, paid_at) VALUES (?, ?)`,
		day.Format("2006-01-02"), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки дня кэшбэка: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
