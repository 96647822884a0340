// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// maxLoggedText — сколько символов текста попадает в лог.
const maxLoggedText = 50

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, username, текст (первые 50 символов).
func LogMessage(message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.Username,
		"text":     Truncate(message.Text, maxLoggedText),
		"time":     time.Now().Format("15:04:05"),
	}).Debug("Входящее сообщение")
}

// Truncate обрезает строку до n символов (не байт) и добавляет "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
