// Package telegram оборачивает telego: авторизация, long polling,
// отправка сообщений и бросок анимированного кубика.
package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// diceEmoji — кубик с гранями 1–6.
const diceEmoji = "🎲"

// ErrNoDice — Telegram вернул сообщение без значения кубика.
var ErrNoDice = errors.New("в ответе Telegram нет значения кубика")

// Sender отправляет текстовые сообщения в чат.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Client — тонкая обёртка над telego.Bot.
type Client struct {
	bot      *telego.Bot
	username string
}

// New создаёт клиента и проверяет токен через getMe.
func New(ctx context.Context, token string, debug bool) (*Client, error) {
	opts := []telego.BotOption{telego.WithLogger(log.WithField("component", "telego"))}
	if debug {
		opts = append(opts, telego.WithDefaultDebugLogger())
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	return &Client{bot: bot, username: me.Username}, nil
}

// Username возвращает имя бота без @.
func (c *Client) Username() string {
	return c.username
}

// Updates запускает long polling. Канал закрывается при отмене ctx.
func (c *Client) Updates(ctx context.Context, timeoutSeconds int) (<-chan telego.Update, error) {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        timeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка запуска long polling: %w", err)
	}
	return updates, nil
}

// Send отправляет текст в чат.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("ошибка отправки сообщения в чат %d: %w", chatID, err)
	}
	return nil
}

// SendDice бросает анимированный кубик в чате и возвращает выпавшее значение.
func (c *Client) SendDice(ctx context.Context, chatID int64) (int, error) {
	msg, err := c.bot.SendDice(ctx, &telego.SendDiceParams{
		ChatID: tu.ID(chatID),
		Emoji:  diceEmoji,
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка броска кубика в чате %d: %w", chatID, err)
	}
	if msg == nil || msg.Dice == nil {
		return 0, ErrNoDice
	}
	return msg.Dice.Value, nil
}
