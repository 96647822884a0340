// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: открывает хранилище, шину событий, Telegram-клиент,
// создаёт сервисы, обработчики, фоновые задачи и собирает всё в один объект Bot.
package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/api"
	"github.com/rgndice/dicebot/internal/bot"
	"github.com/rgndice/dicebot/internal/bot/filters"
	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/config"
	"github.com/rgndice/dicebot/internal/db"
	"github.com/rgndice/dicebot/internal/events"
	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/cashback"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/referral"
	"github.com/rgndice/dicebot/internal/features/wallet"
	"github.com/rgndice/dicebot/internal/jobs"
	"github.com/rgndice/dicebot/internal/telegram"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Rounds    *jobs.RoundRunner
	Scheduler *jobs.Scheduler
	API       *api.API // nil, если API_ENABLED=false
	Store     db.Store
	Publisher events.Publisher
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 1. Хранилище (миграции применяются внутри) ===
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Шина событий ===
	publisher, err := newPublisher(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	// === 3. Telegram Bot API ===
	client, err := telegram.New(ctx, cfg.TelegramBotToken, cfg.AppEnv == "development")
	if err != nil {
		publisher.Close()
		store.Close()
		return nil, err
	}
	log.Infof("Авторизован как @%s", client.Username())

	// === 4. Сервисы ===
	var roller game.Roller
	if cfg.BotTelegramDice {
		roller = bot.NewTelegramRoller(client)
	}

	walletService := wallet.NewService(store, cfg.WelcomeBonus)
	gameService := game.NewService(store, walletService, roller, publisher, game.Rules{
		MinBet: cfg.GameMinBet,
		MaxBet: cfg.GameMaxBet,
		Multipliers: game.Multipliers{
			game.CategoryBig:   cfg.GameMultiplierBig,
			game.CategorySmall: cfg.GameMultiplierSmall,
			game.CategoryLucky: cfg.GameMultiplierLucky,
		},
		HistoryLimit: cfg.GameHistoryLimit,
		StopCooldown: cfg.GameStopCooldown,
	})
	referralService := referral.NewService(store, walletService, publisher, cfg.ReferralBonus)
	adminService := admin.NewService(store, walletService, publisher,
		cfg.AdminWalletCeiling, cfg.AdminIDs, cfg.AdminPasswordHash)
	cashbackService := cashback.NewService(store, walletService, publisher, cashback.Rules{
		Percent: cfg.GameCashbackPercent,
		MinLoss: cfg.GameCashbackMinLoss,
		Max:     cfg.GameCashbackMax,
	}, loc)

	// === 5. Фоновые задачи ===
	rounds := jobs.NewRoundRunner(gameService, jobs.RoundTiming{
		BetWindow: cfg.GameBetWindow,
		RollDelay: cfg.GameRollDelay,
		IdleLimit: cfg.GameIdleLimit,
	})
	scheduler, err := jobs.NewScheduler(adminService, cfg.AdminRefillTime, loc)
	if err != nil {
		publisher.Close()
		store.Close()
		return nil, fmt.Errorf("ошибка настройки планировщика: %w", err)
	}
	if cashbackService.Rules().Enabled() {
		if err := scheduler.EnableCashback(cashbackService, cfg.GameCashbackTime); err != nil {
			publisher.Close()
			store.Close()
			return nil, fmt.Errorf("ошибка настройки кэшбэка: %w", err)
		}
	}

	// === 6. Обработчики ===
	handlers := bot.Handlers{
		Game:     game.NewHandler(gameService, walletService, rounds, client, cfg.GameBetWindow, loc),
		Referral: referral.NewHandler(referralService, client, client.Username()),
		Admin:    admin.NewHandler(adminService, client, loc),
	}

	// === 7. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.AllowedChatIDs)

	// === 8. Собираем бота ===
	b, err := bot.New(client, cfg, client.Username(), handlers, adminService, rounds, scheduler, chatFilter)
	if err != nil {
		publisher.Close()
		store.Close()
		return nil, err
	}

	application := &App{
		Bot:       b,
		Rounds:    rounds,
		Scheduler: scheduler,
		Store:     store,
		Publisher: publisher,
	}

	// === 9. API статуса ===
	if cfg.APIEnabled {
		application.API = api.New(cfg.APIAddr, cfg.CORSOrigins(), gameService, walletService, adminService, store)
	}

	return application, nil
}

// Close освобождает внешние ресурсы. Вызывается после остановки бота и задач.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.API != nil {
		if err := a.API.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("API: %w", err))
		}
	}
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("хранилище: %w", err))
	}
	return errors.Join(errs...)
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		log.Info("NATS_URL не задан, события не публикуются")
		return events.NewNoopPublisher(), nil
	}
	p, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к NATS: %w", err)
	}
	return p, nil
}
