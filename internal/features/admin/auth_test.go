package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/common"
)

func TestHashAndCheck(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	a := NewAuthenticator(hash)
	assert.True(t, a.Configured())
	assert.True(t, a.Check("s3cret"))
	assert.False(t, a.Check("wrong"))
	assert.False(t, a.Check(""))
}

func TestCheckWithoutHash(t *testing.T) {
	a := NewAuthenticator("")
	assert.False(t, a.Configured())
	assert.False(t, a.Check("anything"))
	assert.False(t, NewAuthenticator("not-a-hash").Check("x"))
}

func TestLoginLockoutAndSession(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := NewAuthenticator(hash)
	a.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, a.Login(1, "bad"), common.ErrWrongPassword)
	}
	// Даже верный пароль не принимается, пока действует блокировка
	assert.ErrorIs(t, a.Login(1, "s3cret"), common.ErrTooManyAttempts)
	assert.False(t, a.HasSession(1))

	now = now.Add(61 * time.Minute)
	require.NoError(t, a.Login(1, "s3cret"))
	assert.True(t, a.HasSession(1))

	now = now.Add(23 * time.Hour)
	assert.True(t, a.HasSession(1))
	now = now.Add(2 * time.Hour)
	assert.False(t, a.HasSession(1))

	require.NoError(t, a.Login(1, "s3cret"))
	a.Logout(1)
	assert.False(t, a.HasSession(1))
}
