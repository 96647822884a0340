package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// Store реализует репозитории всех фич поверх pgxpool.
type Store struct {
	db *pgxpool.Pool
}

// NewStore создаёт хранилище поверх готового пула.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping проверяет соединение.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close закрывает пул.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// notFound переводит pgx.ErrNoRows в common.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	return err
}

// --- wallets ---

const walletColumns = `player_id, chat_id, username, main_balance, referral_points, bonus_points,
	total_bets, total_wins, total_losses, welcome_granted, last_active`

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
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
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE player_id = $1 AND chat_id = $2`
	w, err := scanWallet(s.db.QueryRow(ctx, query, playerID, chatID))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (s *Store) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (player_id, chat_id) DO UPDATE SET
			username = EXCLUDED.username,
			main_balance = EXCLUDED.main_balance,
			referral_points = EXCLUDED.referral_points,
			bonus_points = EXCLUDED.bonus_points,
			total_bets = EXCLUDED.total_bets,
			total_wins = EXCLUDED.total_wins,
			total_losses = EXCLUDED.total_losses,
			welcome_granted = EXCLUDED.welcome_granted,
			last_active = EXCLUDED.last_active
	`
	_, err := s.db.Exec(ctx, query,
		w.PlayerID, w.ChatID, w.Username, w.MainBalance, w.ReferralPoints, w.BonusPoints,
		w.TotalBets, w.TotalWins, w.TotalLosses, w.WelcomeGranted, w.LastActive,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения кошелька: %w", err)
	}
	return nil
}

func (s *Store) TopWallets(ctx context.Context, chatID int64, limit int) ([]*wallet.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE chat_id = $1
		ORDER BY main_balance DESC, player_id
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, chatID, limitOrAll(limit))
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
	query := `SELECT chat_id, last_match_id, idle_rounds, session, updated_at FROM game_chats WHERE chat_id = $1`

	var rec game.ChatRecord
	var session []byte
	err := s.db.QueryRow(ctx, query, chatID).Scan(&rec.ChatID, &rec.LastMatchID, &rec.IdleRounds, &session, &rec.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if len(session) > 0 {
		var snap game.SessionSnapshot
		if err := json.Unmarshal(session, &snap); err != nil {
			return nil, fmt.Errorf("повреждён снимок раунда чата %d: %w", chatID, err)
		}
		rec.Session = &snap
	}
	return &rec, nil
}

func (s *Store) SaveGameSession(ctx context.Context, rec *game.ChatRecord) error {
	var session any
	if rec.Session != nil {
		data, err := json.Marshal(rec.Session)
		if err != nil {
			return err
		}
		session = data
	}

	query := `
		INSERT INTO game_chats (chat_id, last_match_id, idle_rounds, session, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			last_match_id = EXCLUDED.last_match_id,
			idle_rounds = EXCLUDED.idle_rounds,
			session = EXCLUDED.session,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, rec.ChatID, rec.LastMatchID, rec.IdleRounds, session, rec.UpdatedAt); err != nil {
		return fmt.Errorf("ошибка сохранения раунда: %w", err)
	}
	return nil
}

func (s *Store) ListActiveChats(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT chat_id FROM game_chats WHERE session IS NOT NULL ORDER BY chat_id`)
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
	query := `
		INSERT INTO bets (id, chat_id, match_id, player_id, category, stake,
			referral_consumed, bonus_consumed, payout, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.ChatID, rec.MatchID, rec.PlayerID, rec.Category.String(), rec.Stake,
		rec.ReferralConsumed, rec.BonusConsumed, rec.Payout, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи ставки: %w", err)
	}
	return nil
}

// AppendMatchHistory добавляет матч и удаляет записи сверх keep последних в одной транзакции.
func (s *Store) AppendMatchHistory(ctx context.Context, rec *game.MatchRecord, keep int) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO match_history (id, chat_id, match_id, record, settled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id, match_id) DO UPDATE SET record = EXCLUDED.record, settled_at = EXCLUDED.settled_at
	`, rec.ID, rec.ChatID, rec.MatchID, data, rec.SettledAt)
	if err != nil {
		return fmt.Errorf("ошибка записи истории: %w", err)
	}

	if keep > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM match_history
			WHERE chat_id = $1 AND match_id NOT IN (
				SELECT match_id FROM match_history WHERE chat_id = $1 ORDER BY match_id DESC LIMIT $2
			)
		`, rec.ChatID, keep)
		if err != nil {
			return fmt.Errorf("ошибка очистки истории: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListMatchHistory(ctx context.Context, chatID int64, limit int) ([]*game.MatchRecord, error) {
	query := `
		SELECT record FROM (
			SELECT record, match_id FROM match_history
			WHERE chat_id = $1
			ORDER BY match_id DESC
			LIMIT $2
		) recent
		ORDER BY match_id
	`
	rows, err := s.db.Query(ctx, query, chatID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории: %w", err)
	}
	defer rows.Close()

	var out []*game.MatchRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec game.MatchRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("повреждена запись истории: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// --- referrals ---

func (s *Store) LoadReferral(ctx context.Context, referredID int64) (*referral.Record, error) {
	query := `SELECT referred_id, referrer_id, chat_id, awarded, created_at, awarded_at
		FROM referrals WHERE referred_id = $1`

	var rec referral.Record
	var awardedAt *time.Time
	err := s.db.QueryRow(ctx, query, referredID).Scan(
		&rec.ReferredID, &rec.ReferrerID, &rec.ChatID, &rec.Awarded, &rec.CreatedAt, &awardedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if awardedAt != nil {
		rec.AwardedAt = *awardedAt
	}
	return &rec, nil
}

// SaveReferral сохраняет запись. Флаг awarded не сбрасывается обратно в false.
func (s *Store) SaveReferral(ctx context.Context, rec *referral.Record) error {
	var awardedAt *time.Time
	if !rec.AwardedAt.IsZero() {
		awardedAt = &rec.AwardedAt
	}

	query := `
		INSERT INTO referrals (referred_id, referrer_id, chat_id, awarded, created_at, awarded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (referred_id) DO UPDATE SET
			referrer_id = EXCLUDED.referrer_id,
			chat_id = EXCLUDED.chat_id,
			awarded = referrals.awarded OR EXCLUDED.awarded,
			awarded_at = COALESCE(referrals.awarded_at, EXCLUDED.awarded_at)
	`
	_, err := s.db.Exec(ctx, query, rec.ReferredID, rec.ReferrerID, rec.ChatID, rec.Awarded, rec.CreatedAt, awardedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения приглашения: %w", err)
	}
	return nil
}

// --- admin wallets ---

func (s *Store) LoadAdminWallets(ctx context.Context) ([]*admin.Wallet, error) {
	rows, err := s.db.Query(ctx, `SELECT admin_id, chat_id, points, last_refill FROM admin_wallets ORDER BY chat_id, admin_id`)
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
	err := s.db.QueryRow(ctx,
		`SELECT admin_id, chat_id, points, last_refill FROM admin_wallets WHERE admin_id = $1 AND chat_id = $2`,
		adminID, chatID,
	).Scan(&w.AdminID, &w.ChatID, &w.Points, &w.LastRefill)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (s *Store) SaveAdminWallet(ctx context.Context, w *admin.Wallet) error {
	query := `
		INSERT INTO admin_wallets (admin_id, chat_id, points, last_refill)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (admin_id, chat_id) DO UPDATE SET
			points = EXCLUDED.points,
			last_refill = EXCLUDED.last_refill
	`
	if _, err := s.db.Exec(ctx, query, w.AdminID, w.ChatID, w.Points, w.LastRefill); err != nil {
		return fmt.Errorf("ошибка сохранения кошелька администратора: %w", err)
	}
	return nil
}

// SumLosses суммирует проигравшие ставки по игрокам и чатам за [from, to).
func (s *Store) SumLosses(ctx context.Context, from, to time.Time) ([]cashback.Loss, error) {
	query := `
		SELECT chat_id, player_id, SUM(stake)::BIGINT
		FROM bets
		WHERE payout = 0 AND created_at >= $1 AND created_at < $2
		GROUP BY chat_id, player_id
		ORDER BY chat_id, player_id
	`
	rows, err := s.db.Query(ctx, query, from, to)
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
	tag, err := s.db.Exec(ctx,
		`INSERT INTO cashback_days (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки дня кэшбэка: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}
