// Package referral — handlers.go обрабатывает ссылку-приглашение
// (/start ref_<id> в личке), команду !пригласить и вступление в группу.
package referral

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/telegram"
)

// Handler обрабатывает приглашения.
type Handler struct {
	service     *Service
	sender      telegram.Sender
	botUsername string
}

// NewHandler создаёт обработчик приглашений.
func NewHandler(service *Service, sender telegram.Sender, botUsername string) *Handler {
	return &Handler{service: service, sender: sender, botUsername: botUsername}
}

// HandleStartPayload обрабатывает /start с параметром в личке.
// Возвращает false, если параметр не является приглашением.
func (h *Handler) HandleStartPayload(ctx context.Context, chatID, userID int64, args []string) bool {
	if len(args) == 0 {
		return false
	}
	referrerID, ok := ParsePayload(args[0])
	if !ok {
		return false
	}

	created, err := h.service.SetPending(ctx, userID, referrerID)
	switch {
	case errors.Is(err, common.ErrSelfReferral):
		h.send(ctx, chatID, "🙃 Нельзя пригласить самого себя")
	case err != nil:
		log.WithError(err).WithField("user_id", userID).Error("Не удалось сохранить приглашение")
		h.send(ctx, chatID, "❌ Не удалось принять приглашение, попробуйте позже")
	case !created:
		h.send(ctx, chatID, "👋 Приглашение уже учтено. Вступайте в группу и делайте ставки!")
	default:
		h.send(ctx, chatID, "🎉 Приглашение принято! Вступите в группу с игрой, и пригласивший получит бонус.")
	}
	return true
}

// HandleLink отправляет игроку его ссылку-приглашение.
func (h *Handler) HandleLink(ctx context.Context, chatID, userID int64) {
	if h.botUsername == "" {
		h.send(ctx, chatID, "❌ Ссылки-приглашения сейчас недоступны")
		return
	}
	h.send(ctx, chatID, fmt.Sprintf(
		"🤝 Ваша ссылка-приглашение:\n%s\n\nЗа каждого друга, который вступит в группу: +%s реферальных",
		Link(h.botUsername, userID), common.FormatPoints(h.service.Bonus())))
}

// HandleJoin вызывается, когда игрок вступил в группу.
func (h *Handler) HandleJoin(ctx context.Context, chatID, userID int64, name string) {
	referrerID, awarded := h.service.HandleJoin(ctx, chatID, userID)
	if !awarded {
		return
	}
	h.send(ctx, chatID, fmt.Sprintf("🤝 %s вступил по приглашению id%d: пригласившему +%s",
		name, referrerID, common.FormatPoints(h.service.Bonus())))
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if err := h.sender.Send(ctx, chatID, text); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
