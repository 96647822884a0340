// Package game — session.go содержит машину состояний одного раунда.
// Session не потокобезопасна: все вызовы идут под блокировкой чата (см. registry.go).
package game

import (
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// Session — раунд игры в одном чате.
type Session struct {
	MatchID      int64
	ChatID       int64
	State        State
	Bets         map[Category]map[int64]*Stake
	Participants mapset.Set[int64]
	Result       *Dice
	CreatedAt    time.Time
	ClosedAt     time.Time
}

// NewSession создаёт раунд в состоянии WAITING.
func NewSession(chatID, matchID int64, now time.Time) *Session {
	bets := make(map[Category]map[int64]*Stake, len(Categories))
	for _, c := range Categories {
		bets[c] = make(map[int64]*Stake)
	}
	return &Session{
		MatchID:      matchID,
		ChatID:       chatID,
		State:        StateWaiting,
		Bets:         bets,
		Participants: mapset.NewThreadUnsafeSet[int64](),
		CreatedAt:    now,
	}
}

// Active сообщает, что раунд ещё не завершён.
func (s *Session) Active() bool {
	return s.State != StateOver
}

// AddStake добавляет ставку игрока; повторные ставки на ту же категорию суммируются.
func (s *Session) AddStake(category Category, playerID int64, username string, amount int64, consumed wallet.Consumption) (*Stake, error) {
	if s.State != StateWaiting {
		return nil, common.ErrGameClosed
	}
	if !category.Valid() {
		return nil, common.ErrInvalidBetType
	}

	stake, ok := s.Bets[category][playerID]
	if !ok {
		stake = &Stake{}
		s.Bets[category][playerID] = stake
	}
	if username != "" {
		stake.Username = username
	}
	stake.Amount += amount
	stake.Consumed = stake.Consumed.Add(consumed)
	s.Participants.Add(playerID)
	return stake, nil
}

// Close переводит раунд WAITING → CLOSED.
func (s *Session) Close(now time.Time) error {
	if s.State != StateWaiting {
		return fmt.Errorf("закрыть ставки в состоянии %s: %w", s.State, common.ErrInvalidStateTransition)
	}
	s.State = StateClosed
	s.ClosedAt = now
	return nil
}

// SetResult записывает результат броска. Допустимо только один раз и только в CLOSED.
func (s *Session) SetResult(d Dice) error {
	if s.State != StateClosed || s.Result != nil {
		return fmt.Errorf("записать результат в состоянии %s: %w", s.State, common.ErrInvalidStateTransition)
	}
	if !d.Valid() {
		return fmt.Errorf("некорректный бросок %v", d)
	}
	s.Result = &d
	return nil
}

// Finish переводит раунд CLOSED → OVER. Требует записанного результата.
func (s *Session) Finish() error {
	if s.State != StateClosed || s.Result == nil {
		return fmt.Errorf("завершить раунд в состоянии %s: %w", s.State, common.ErrInvalidStateTransition)
	}
	s.State = StateOver
	return nil
}

// CategoryTotal возвращает сумму ставок на категорию.
func (s *Session) CategoryTotal(c Category) int64 {
	var total int64
	for _, st := range s.Bets[c] {
		total += st.Amount
	}
	return total
}

// TotalStaked возвращает сумму всех ставок раунда.
func (s *Session) TotalStaked() int64 {
	var total int64
	for _, c := range Categories {
		total += s.CategoryTotal(c)
	}
	return total
}

// SortedPlayers возвращает игроков категории по возрастанию id.
func (s *Session) SortedPlayers(c Category) []int64 {
	ids := make([]int64, 0, len(s.Bets[c]))
	for id := range s.Bets[c] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Status возвращает независимую копию состояния раунда.
func (s *Session) Status() *Status {
	st := &Status{
		MatchID:   s.MatchID,
		ChatID:    s.ChatID,
		State:     s.State,
		Bets:      make(map[Category]map[int64]int64, len(Categories)),
		Totals:    make(map[Category]int64, len(Categories)),
		CreatedAt: s.CreatedAt,
	}
	for _, c := range Categories {
		m := make(map[int64]int64, len(s.Bets[c]))
		for id, stake := range s.Bets[c] {
			m[id] = stake.Amount
		}
		st.Bets[c] = m
		st.Totals[c] = s.CategoryTotal(c)
	}
	st.Participants = s.Participants.ToSlice()
	sort.Slice(st.Participants, func(i, j int) bool { return st.Participants[i] < st.Participants[j] })
	if s.Result != nil {
		d := *s.Result
		st.Result = &d
	}
	return st
}

// SessionSnapshot — сериализуемая форма раунда для хранилища.
type SessionSnapshot struct {
	MatchID   int64       `json:"match_id"`
	ChatID    int64       `json:"chat_id"`
	State     State       `json:"state"`
	Bets      []StakeLine `json:"bets"`
	Result    *Dice       `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ClosedAt  time.Time   `json:"closed_at,omitempty"`
}

// StakeLine — одна ставка в снимке.
type StakeLine struct {
	Category Category `json:"category"`
	PlayerID int64    `json:"player_id"`
	Stake
}

// Snapshot возвращает сериализуемую копию раунда.
func (s *Session) Snapshot() *SessionSnapshot {
	snap := &SessionSnapshot{
		MatchID:   s.MatchID,
		ChatID:    s.ChatID,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		ClosedAt:  s.ClosedAt,
	}
	for _, c := range Categories {
		for _, id := range s.SortedPlayers(c) {
			snap.Bets = append(snap.Bets, StakeLine{Category: c, PlayerID: id, Stake: *s.Bets[c][id]})
		}
	}
	if s.Result != nil {
		d := *s.Result
		snap.Result = &d
	}
	return snap
}

// RestoreSession восстанавливает раунд из снимка.
func RestoreSession(snap *SessionSnapshot) *Session {
	s := NewSession(snap.ChatID, snap.MatchID, snap.CreatedAt)
	s.State = snap.State
	s.ClosedAt = snap.ClosedAt
	for _, line := range snap.Bets {
		if !line.Category.Valid() {
			continue
		}
		stake := line.Stake
		s.Bets[line.Category][line.PlayerID] = &stake
		s.Participants.Add(line.PlayerID)
	}
	if snap.Result != nil {
		d := *snap.Result
		s.Result = &d
	}
	return s
}
