// Package game — registry.go хранит состояние всех чатов процесса.
// Каждый чат защищён своей блокировкой: разные чаты работают параллельно,
// операции внутри одного чата строго последовательны.
package game

import (
	"sort"
	"sync"
	"time"
)

// chatState — всё, что процесс знает об одном чате.
type chatState struct {
	mu sync.Mutex

	loaded        bool
	historyLoaded bool
	session       *Session
	lastMatchID   int64
	idleRounds    int
	history       []*MatchRecord
	cooldownUntil time.Time
}

// Registry — явное хранилище состояний чатов, ключ — chatID.
type Registry struct {
	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{chats: make(map[int64]*chatState)}
}

// acquire возвращает состояние чата под захваченной блокировкой.
// Вызывающий обязан вызвать release.
func (r *Registry) acquire(chatID int64) *chatState {
	r.mu.Lock()
	cs, ok := r.chats[chatID]
	if !ok {
		cs = &chatState{}
		r.chats[chatID] = cs
	}
	r.mu.Unlock()

	cs.mu.Lock()
	return cs
}

func (cs *chatState) release() {
	cs.mu.Unlock()
}

// ChatIDs возвращает известные чаты по возрастанию id.
func (r *Registry) ChatIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.chats))
	for id := range r.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// appendHistory добавляет запись и обрезает историю до limit последних.
func (cs *chatState) appendHistory(rec *MatchRecord, limit int) {
	cs.history = append(cs.history, rec)
	if limit > 0 && len(cs.history) > limit {
		cs.history = append([]*MatchRecord(nil), cs.history[len(cs.history)-limit:]...)
	}
}
