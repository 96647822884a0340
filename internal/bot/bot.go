// Package bot содержит главный модуль бота — приём апдейтов, маршрутизацию
// команд и объявления о раундах.
// bot.go принимает апдейты через long polling и раздаёт их пулу воркеров.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/bot/filters"
	"github.com/rgndice/dicebot/internal/bot/middleware"
	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/config"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/jobs"
	"github.com/rgndice/dicebot/internal/telegram"
)

// Transport — источник апдейтов и канал отправки сообщений.
type Transport interface {
	telegram.Sender
	Updates(ctx context.Context, timeoutSeconds int) (<-chan telego.Update, error)
}

// Handlers — обработчики команд по фичам.
type Handlers struct {
	Game     *game.Handler
	Referral *referral.Handler
	Admin    *admin.Handler
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	transport Transport
	cfg       *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	handlers     Handlers
	adminService *admin.Service
	rounds       *jobs.RoundRunner
	scheduler    *jobs.Scheduler

	// пул ограничивает параллельную обработку апдейтов
	pool *ants.Pool
}

// New создаёт бота со всеми зависимостями.
func New(
	transport Transport,
	cfg *config.Config,
	botUsername string,
	handlers Handlers,
	adminService *admin.Service,
	rounds *jobs.RoundRunner,
	scheduler *jobs.Scheduler,
	chatFilter *filters.ChatFilter,
) (*Bot, error) {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	pool, err := ants.NewPool(maxInFlight, ants.WithPanicHandler(middleware.LogPanic))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула обработчиков: %w", err)
	}

	return &Bot{
		transport:    transport,
		cfg:          cfg,
		chatFilter:   chatFilter,
		rateLimiter:  middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:       NewCommandParser(botUsername),
		handlers:     handlers,
		adminService: adminService,
		rounds:       rounds,
		scheduler:    scheduler,
		pool:         pool,
	}, nil
}

// Start запускает объявления и long polling. Блокируется до отмены ctx,
// затем дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.transport.Updates(ctx, b.cfg.BotUpdateTimeoutSeconds)
	if err != nil {
		return err
	}

	if b.rounds != nil {
		go b.announceRounds()
	}
	if b.scheduler != nil {
		go b.announceJobs(ctx)
	}

	log.WithFields(log.Fields{
		"max_inflight": b.pool.Cap(),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}
			if err := b.pool.Submit(func() { b.handleUpdate(ctx, update) }); err != nil {
				log.WithError(err).WithField("update_id", update.UpdateID).Warn("Апдейт не принят в обработку")
			}
		}
	}
}

func (b *Bot) stop() {
	if err := b.pool.ReleaseTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("Не все обработчики завершились вовремя")
	}
	b.rateLimiter.Close()
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil {
		return
	}

	// Вступление новых участников
	if len(message.NewChatMembers) > 0 {
		if b.chatFilter.GroupAllowed(message.Chat.ID) {
			b.handleNewMembers(ctx, message.Chat.ID, message.NewChatMembers)
		}
		return
	}

	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	private := message.Chat.Type == telego.ChatTypePrivate
	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      args,
	}).Debug("parsed command")

	if isCommand {
		b.routeCommand(ctx, message, private, cmd, args)
		return
	}

	// Ставка без команды: "b 500"
	if !private {
		if words, ok := b.parser.ParseShorthandBet(message.Text); ok {
			b.handlers.Game.HandleBet(ctx, message.Chat.ID, message.From.ID,
				message.From.Username, message.From.FirstName, words, true)
		}
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *telego.Message, private bool, cmd string, args []string) {
	chatID := message.Chat.ID
	from := message.From
	userID := from.ID

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start", "help", "помощь":
		if private && cmd == "start" && b.handlers.Referral.HandleStartPayload(ctx, chatID, userID, args) {
			return
		}
		b.send(ctx, chatID, helpText)

	// --- Админка в личке ---
	case "login":
		if private {
			b.handlers.Admin.HandleLogin(ctx, chatID, userID, args)
		}
	case "logout":
		if private {
			b.handlers.Admin.HandleLogout(ctx, chatID, userID)
		}
	case "админ", "admin", "панель":
		b.handlers.Admin.HandlePanel(ctx, chatID, userID, private)
	case "кошельки", "wallets":
		b.handlers.Admin.HandleWallets(ctx, chatID, userID, private, args)
	case "пополнить", "refill":
		b.handlers.Admin.HandleRefill(ctx, chatID, userID, private, args)

	// --- Рефералы ---
	case "пригласить", "invite", "ref":
		b.handlers.Referral.HandleLink(ctx, chatID, userID)

	default:
		if private {
			if isGroupCommand(cmd) {
				b.send(ctx, chatID, "👥 Эта команда работает только в группе с игрой")
			}
			return
		}
		b.routeGroupCommand(ctx, message, cmd, args)
	}
}

// routeGroupCommand — игровые команды, доступные только в группе.
func (b *Bot) routeGroupCommand(ctx context.Context, message *telego.Message, cmd string, args []string) {
	chatID := message.Chat.ID
	from := message.From

	switch cmd {
	case "ставка", "bet":
		b.handlers.Game.HandleBet(ctx, chatID, from.ID, from.Username, from.FirstName, args, false)
	case "играть", "play", "начать":
		b.handlers.Game.HandleStart(ctx, chatID)
	case "раунд", "status", "статус":
		b.handlers.Game.HandleStatus(ctx, chatID)
	case "история", "history":
		b.handlers.Game.HandleHistory(ctx, chatID, args)
	case "топ", "top", "leaderboard":
		b.handlers.Game.HandleLeaderboard(ctx, chatID)
	case "баланс", "balance", "кошелёк", "кошелек":
		b.handlers.Game.HandleBalance(ctx, chatID, from.ID, from.Username, from.FirstName)
	case "стоп", "stop":
		if !b.adminService.IsAdmin(from.ID) {
			b.send(ctx, chatID, "❌ "+common.ErrNotAdmin.Error())
			return
		}
		b.handlers.Game.HandleStop(ctx, chatID)
	case "начислить", "adjust":
		var replyTo int64
		if r := message.ReplyToMessage; r != nil && r.From != nil {
			replyTo = r.From.ID
		}
		b.handlers.Admin.HandleAdjust(ctx, chatID, from.ID, replyTo, args)
	}
}

var groupCommands = map[string]struct{}{
	"ставка": {}, "bet": {}, "играть": {}, "play": {}, "начать": {},
	"раунд": {}, "status": {}, "статус": {}, "история": {}, "history": {},
	"топ": {}, "top": {}, "leaderboard": {}, "баланс": {}, "balance": {},
	"кошелёк": {}, "кошелек": {}, "стоп": {}, "stop": {}, "начислить": {}, "adjust": {},
}

func isGroupCommand(cmd string) bool {
	_, ok := groupCommands[cmd]
	return ok
}

const helpText = `🎲 Игра в кости

Каждый раунд бросаются две кости:
🔴 BIG — сумма 8–12
⚫ SMALL — сумма 2–6
🍀 LUCKY — ровно 7

Команды в группе:
  !играть — запустить раунды
  b 500 / s 500 / l 500 — ставка (или !ставка big 500)
  !раунд — текущий раунд
  !баланс — ваш кошелёк
  !история — последние матчи
  !топ — рейтинг игроков
  !пригласить — ссылка для друзей

Ставки сначала списываются с реферальных очков, затем с бонусных, затем с основного баланса. Выигрыш всегда зачисляется на основной баланс.`

// handleNewMembers обрабатывает вступление новых участников.
func (b *Bot) handleNewMembers(ctx context.Context, chatID int64, members []telego.User) {
	for _, user := range members {
		if user.IsBot {
			continue
		}
		b.handlers.Referral.HandleJoin(ctx, chatID, user.ID, common.DisplayName(user.Username, user.FirstName, user.ID))
		log.WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": user.ID,
		}).Info("Новый участник обработан")
	}
}

// send — утилита для отправки сообщений.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.transport.Send(ctx, chatID, text); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
