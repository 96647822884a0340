// Package jobs управляет фоновыми задачами: ежедневным пополнением
// кошельков администраторов и кэшбэком (cron) и циклами раундов в чатах.
// Результаты задач отдаются через каналы, а не колбэки.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
)

// Refiller — то, что умеет пополнять кошельки администраторов.
type Refiller interface {
	Refill(ctx context.Context, chatID int64) *admin.RefillReport
}

// CashbackPayer — то, что умеет начислять ежедневный кэшбэк.
type CashbackPayer interface {
	Run(ctx context.Context) (*cashback.Report, error)
}

// Scheduler запускает пополнение кошельков и кэшбэк раз в сутки в заданное местное время.
type Scheduler struct {
	cron     *cron.Cron
	refiller Refiller
	spec     string
	loc      *time.Location
	results  chan *admin.RefillReport
	entry    cron.EntryID

	cashback        CashbackPayer
	cashbackSpec    string
	cashbackResults chan *cashback.Report
}

// NewScheduler создаёт планировщик. refillTime — "ЧЧ:ММ" в часовом поясе loc.
func NewScheduler(refiller Refiller, refillTime string, loc *time.Location) (*Scheduler, error) {
	hour, minute, err := common.ParseClock(refillTime)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		refiller: refiller,
		spec:     fmt.Sprintf("%d %d * * *", minute, hour),
		loc:      loc,
		results:  make(chan *admin.RefillReport, 8),

		cashbackResults: make(chan *cashback.Report, 8),
	}, nil
}

// EnableCashback добавляет ежедневный кэшбэк в at ("ЧЧ:ММ"). Вызывается до Start.
func (s *Scheduler) EnableCashback(payer CashbackPayer, at string) error {
	hour, minute, err := common.ParseClock(at)
	if err != nil {
		return err
	}
	s.cashback = payer
	s.cashbackSpec = fmt.Sprintf("%d %d * * *", minute, hour)
	return nil
}

// CashbackResults возвращает канал с итогами начисления кэшбэка.
func (s *Scheduler) CashbackResults() <-chan *cashback.Report {
	return s.cashbackResults
}

// Results возвращает канал с итогами пополнений (плановых и ручных).
func (s *Scheduler) Results() <-chan *admin.RefillReport {
	return s.results
}

// Start регистрирует задачу и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		log.Info("[CRON] Пополнение кошельков администраторов")
		s.RunNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("ошибка регистрации задачи %q: %w", s.spec, err)
	}
	s.entry = id

	if s.cashback != nil {
		if _, err := s.cron.AddFunc(s.cashbackSpec, func() {
			log.Info("[CRON] Ежедневный кэшбэк")
			_, _ = s.RunCashbackNow(ctx)
		}); err != nil {
			return fmt.Errorf("ошибка регистрации задачи %q: %w", s.cashbackSpec, err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"spec":     s.spec,
		"cashback": s.cashbackSpec,
		"timezone": s.loc.String(),
		"next":     s.Next(),
	}).Info("Планировщик задач запущен")
	return nil
}

// RunNow выполняет пополнение во всех чатах немедленно.
func (s *Scheduler) RunNow(ctx context.Context) *admin.RefillReport {
	report := s.refiller.Refill(ctx, 0)
	if report.Failed > 0 {
		log.WithField("failed", report.Failed).Warn("[CRON] Часть кошельков не сохранена, догоним при следующем запуске")
	}
	select {
	case s.results <- report:
	default:
		log.Debug("[CRON] Канал результатов переполнен, отчёт отброшен")
	}
	return report
}

// RunCashbackNow начисляет кэшбэк за вчера немедленно.
// Повторный запуск за тот же день ничего не начисляет.
func (s *Scheduler) RunCashbackNow(ctx context.Context) (*cashback.Report, error) {
	if s.cashback == nil {
		return nil, errors.New("кэшбэк не включён")
	}
	report, err := s.cashback.Run(ctx)
	switch {
	case errors.Is(err, common.ErrCashbackAlreadyPaid):
		log.WithError(err).Info("[CRON] Кэшбэк пропущен")
		return nil, err
	case err != nil:
		log.WithError(err).Error("[CRON] Кэшбэк не начислен")
		return nil, err
	}

	select {
	case s.cashbackResults <- report:
	default:
		log.Debug("[CRON] Канал результатов кэшбэка переполнен, отчёт отброшен")
	}
	return report, nil
}

// Next возвращает время следующего запуска (нулевое, если задача не зарегистрирована).
func (s *Scheduler) Next() time.Time {
	e := s.cron.Entry(s.entry)
	if e.Schedule == nil {
		return time.Time{}
	}
	return e.Schedule.Next(time.Now().In(s.loc))
}

// Stop останавливает планировщик и ждёт завершения текущей задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
