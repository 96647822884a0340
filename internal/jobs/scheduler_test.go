package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
)

type fakeRefiller struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeRefiller) Refill(_ context.Context, chatID int64) *admin.RefillReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatID)
	return &admin.RefillReport{ChatID: chatID, Ceiling: 10000, Refilled: 2}
}

type fakeCashback struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCashback) Run(context.Context) (*cashback.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > 1 {
		return nil, common.ErrCashbackAlreadyPaid
	}
	return &cashback.Report{Day: "2024-04-30", Total: 150, Credits: []cashback.Credit{
		{PlayerID: 7, ChatID: -1, Losses: 1500, Amount: 150},
	}}, nil
}

func TestNewSchedulerBuildsDailyCronExpr(t *testing.T) {
	s, err := NewScheduler(&fakeRefiller{}, "07:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", s.spec)

	_, err = NewScheduler(&fakeRefiller{}, "25:00", time.UTC)
	assert.Error(t, err)
}

func TestRunNowDeliversReport(t *testing.T) {
	f := &fakeRefiller{}
	s, err := NewScheduler(f, "00:00", nil)
	require.NoError(t, err)

	report := s.RunNow(context.Background())
	assert.Equal(t, 2, report.Refilled)
	assert.Equal(t, []int64{0}, f.calls)

	select {
	case got := <-s.Results():
		assert.Same(t, report, got)
	default:
		t.Fatal("отчёт не попал в канал")
	}
}

func TestRunNowDoesNotBlockOnFullChannel(t *testing.T) {
	s, err := NewScheduler(&fakeRefiller{}, "00:00", time.UTC)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range cap(s.results) + 3 {
			s.RunNow(context.Background())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunNow заблокировался")
	}
}

func TestNextIsNextLocalRefill(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	s, err := NewScheduler(&fakeRefiller{}, "00:00", loc)
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.Next().In(loc)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.WithinDuration(t, time.Now(), next, 24*time.Hour)
}

func TestEnableCashbackBuildsCronExpr(t *testing.T) {
	s, err := NewScheduler(&fakeRefiller{}, "06:00", time.UTC)
	require.NoError(t, err)

	assert.Error(t, s.EnableCashback(&fakeCashback{}, "24:05"))
	require.NoError(t, s.EnableCashback(&fakeCashback{}, "00:05"))
	assert.Equal(t, "5 0 * * *", s.cashbackSpec)
}

func TestRunCashbackNowDeliversReportOnce(t *testing.T) {
	f := &fakeCashback{}
	s, err := NewScheduler(&fakeRefiller{}, "06:00", nil)
	require.NoError(t, err)

	_, err = s.RunCashbackNow(context.Background())
	require.Error(t, err, "кэшбэк не включён")

	require.NoError(t, s.EnableCashback(f, "00:05"))
	report, err := s.RunCashbackNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(150), report.Total)

	select {
	case got := <-s.CashbackResults():
		assert.Same(t, report, got)
	default:
		t.Fatal("отчёт о кэшбэке не попал в канал")
	}

	_, err = s.RunCashbackNow(context.Background())
	assert.ErrorIs(t, err, common.ErrCashbackAlreadyPaid)
	select {
	case <-s.CashbackResults():
		t.Fatal("повторный кэшбэк не должен давать отчёт")
	default:
	}
}

func TestStartRegistersCashbackEntry(t *testing.T) {
	s, err := NewScheduler(&fakeRefiller{}, "06:00", time.UTC)
	require.NoError(t, err)
	require.NoError(t, s.EnableCashback(&fakeCashback{}, "00:05"))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 2)
}
