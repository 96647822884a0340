// Package main — точка входа бота.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/app"
	"github.com/rgndice/dicebot/internal/config"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	log.Info("=== Бот запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}
	if cfg.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем приложение (хранилище, бот, сервисы, обработчики)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}

	// Запускаем планировщик задач (cron)
	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}

	// Продолжаем раунды, прерванные перезапуском
	resumed, err := application.Rounds.Resume(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось восстановить раунды из хранилища")
	} else if resumed > 0 {
		log.WithField("rounds", resumed).Info("Незавершённые раунды продолжены")
	}

	if application.API != nil {
		go func() {
			if err := application.API.Start(); err != nil {
				log.WithError(err).Error("API статуса остановлен с ошибкой")
			}
		}()
	}

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем бота в отдельной горутине
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := application.Bot.Start(ctx); err != nil {
			log.WithError(err).Error("Бот остановлен с ошибкой")
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()

	log.Info("=== Бот готов к работе ===")

	// Ждём сигнала остановки
	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	// Отменяем контекст — все горутины начнут завершаться
	cancel()
	<-botDone

	application.Rounds.Shutdown()
	application.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := application.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Ошибка при освобождении ресурсов")
	}

	log.Info("=== Бот остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
