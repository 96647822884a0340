package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает количество сообщений от одного игрока
// скользящим окном. limit <= 0 отключает ограничение.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт ограничитель и запускает фоновую очистку.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow регистрирует запрос и сообщает, укладывается ли он в лимит.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := prune(rl.requests[userID], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.requests[userID] = recent
		return false
	}
	rl.requests[userID] = append(recent, now)
	return true
}

// prune оставляет отметки новее cutoff. Отметки идут по возрастанию.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.window)
			for userID, times := range rl.requests {
				if recent := prune(times, cutoff); len(recent) == 0 {
					delete(rl.requests, userID)
				} else {
					rl.requests[userID] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}
