package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Close()

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "лимит считается отдельно для каждого пользователя")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow(1))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "ставка", Truncate("ставка", 10))
	assert.Equal(t, "ста...", Truncate("ставка big 500", 3))
}

func TestRecoverFromPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverFromPanic()
		panic("boom")
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Close()
	for range 100 {
		assert.True(t, rl.Allow(1))
	}
}

func TestPruneKeepsNewer(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}
	assert.Equal(t, times[2:], prune(times, base.Add(time.Second)))
	assert.Empty(t, prune(times, base.Add(time.Hour)))
}
