// Package filters решает, какие сообщения бот вообще обрабатывает.
package filters

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает личные сообщения и разрешённые группы.
type ChatFilter struct {
	allowed mapset.Set[int64]
}

// NewChatFilter создаёт фильтр. Пустой список — разрешена любая группа.
func NewChatFilter(allowedChatIDs []int64) *ChatFilter {
	return &ChatFilter{allowed: mapset.NewSet(allowedChatIDs...)}
}

// GroupAllowed сообщает, разрешена ли игра в группе.
func (f *ChatFilter) GroupAllowed(chatID int64) bool {
	return f.allowed.Cardinality() == 0 || f.allowed.Contains(chatID)
}

// CheckAccess проверяет, нужно ли обрабатывать сообщение.
func (f *ChatFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		return false
	}
	if message.From == nil || message.From.IsBot {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("skip: service message or bot")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	switch message.Chat.Type {
	case telego.ChatTypePrivate:
		return true
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		if f.GroupAllowed(message.Chat.ID) {
			return true
		}
		logger.Debug("deny: group not in ALLOWED_CHAT_IDS")
		return false
	}

	logger.Debug("deny: unsupported chat type")
	return false
}
