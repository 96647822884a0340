package bot

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/jobs"
)

// announceTimeout ограничивает отправку одного объявления.
const announceTimeout = 15 * time.Second

// announceRounds пересылает события циклов раундов в чаты.
// Завершается, когда RoundRunner закрывает канал при Shutdown.
func (b *Bot) announceRounds() {
	for ev := range b.rounds.Events() {
		b.announceRound(ev)
	}
	log.Debug("Объявления о раундах остановлены")
}

func (b *Bot) announceRound(ev jobs.RoundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	h := b.handlers.Game
	switch ev.Kind {
	case jobs.RoundOpened:
		h.AnnounceOpened(ctx, ev.Status)
	case jobs.BettingClosed:
		h.AnnounceClosed(ctx, ev.Status)
	case jobs.RoundSettled:
		h.AnnounceSettled(ctx, ev.Settlement)
	case jobs.RoundsPaused:
		h.AnnouncePaused(ctx, ev.Settlement)
	case jobs.RoundFailed:
		h.AnnounceFailed(ctx, ev.ChatID)
	}
}

// announceJobs сообщает администраторам в личку о плановом пополнении,
// а чатам — о начисленном кэшбэке.
func (b *Bot) announceJobs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-b.scheduler.Results():
			b.notifyAdmins(ctx, report)
		case report := <-b.scheduler.CashbackResults():
			b.announceCashback(ctx, report)
		}
	}
}

func (b *Bot) announceCashback(ctx context.Context, report *cashback.Report) {
	for _, chatID := range report.ChatIDs() {
		if err := b.transport.Send(ctx, chatID, cashback.ChatText(report, chatID)); err != nil {
			log.WithError(err).WithField("chat_id", chatID).Warn("Не удалось объявить кэшбэк")
		}
	}
}

func (b *Bot) notifyAdmins(ctx context.Context, report *admin.RefillReport) {
	text := admin.RefillText(report)
	for _, adminID := range b.cfg.AdminIDs {
		if err := b.transport.Send(ctx, adminID, text); err != nil {
			log.WithError(err).WithField("user_id", adminID).Debug("Не удалось уведомить администратора")
		}
	}
}
