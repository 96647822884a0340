// Package admin — handlers.go обрабатывает команды администраторов.
// В группе достаточно быть в ADMIN_IDS; в личке нужна сессия,
// открытая через /login <пароль>.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/telegram"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	sender  telegram.Sender
	loc     *time.Location
}

// NewHandler создаёт обработчик админ-команд.
func NewHandler(service *Service, sender telegram.Sender, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, sender: sender, loc: loc}
}

// HandleLogin открывает сессию администратора (только в личке).
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, args []string) {
	if !h.service.IsAdmin(userID) {
		h.send(ctx, chatID, "❌ "+common.ErrNotAdmin.Error())
		return
	}
	if !h.service.Auth().Configured() {
		h.send(ctx, chatID, "❌ Пароль администратора не задан (ADMIN_PASSWORD_HASH)")
		return
	}
	if len(args) == 0 {
		h.send(ctx, chatID, "🔐 Использование: /login <пароль>")
		return
	}

	err := h.service.Auth().Login(userID, strings.Join(args, " "))
	switch {
	case err == nil:
		h.send(ctx, chatID, "✅ Аутентификация успешна!\n\n"+panelText)
	case errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts):
		h.send(ctx, chatID, "❌ "+err.Error())
	default:
		log.WithError(err).WithField("user_id", userID).Error("Ошибка входа администратора")
		h.send(ctx, chatID, "❌ Ошибка входа")
	}
}

// HandleLogout закрывает сессию.
func (h *Handler) HandleLogout(ctx context.Context, chatID, userID int64) {
	h.service.Auth().Logout(userID)
	h.send(ctx, chatID, "👋 Сессия закрыта")
}

// HandlePanel показывает список админ-команд.
func (h *Handler) HandlePanel(ctx context.Context, chatID, userID int64, private bool) {
	if !h.authorize(ctx, chatID, userID, private) {
		return
	}
	h.send(ctx, chatID, panelText)
}

const panelText = `🛠 Команды администратора
В группе:
  !начислить <сумма> — ответом на сообщение игрока
  !начислить <id> <сумма>
  !стоп — остановить раунд и вернуть ставки
  !кошельки — кошельки админов этого чата
  !пополнить — пополнить кошельки этого чата
В личке (после /login):
  /кошельки <chat_id>
  /пополнить [all|<chat_id>]
  /logout`

// HandleAdjust меняет основной баланс игрока. Цель — автор сообщения,
// на которое ответил админ (replyToID), либо первый аргумент.
func (h *Handler) HandleAdjust(ctx context.Context, chatID, adminID, replyToID int64, args []string) {
	if !h.authorize(ctx, chatID, adminID, false) {
		return
	}

	playerID, delta, err := parseAdjustArgs(replyToID, args)
	if err != nil {
		h.send(ctx, chatID, "❌ Использование: !начислить <сумма> (ответом) или !начислить <id> <сумма>")
		return
	}

	adj, err := h.service.AdjustScore(ctx, adminID, chatID, playerID, delta)
	switch {
	case err == nil:
		h.send(ctx, chatID, fmt.Sprintf("✅ id%d: %s\n💰 Баланс игрока: %s\n👛 Кошелёк админа: %s",
			playerID, common.FormatSignedPoints(adj.Applied),
			common.FormatPoints(adj.PlayerMain), common.FormatPoints(adj.AdminPoints)))
	case errors.Is(err, common.ErrAdminWalletInsufficient), errors.Is(err, common.ErrInvalidAmount), errors.Is(err, common.ErrNotAdmin):
		h.send(ctx, chatID, "❌ "+rootMessage(err))
	case errors.Is(err, common.ErrPersistenceUnavailable):
		log.WithError(err).WithField("chat_id", chatID).Warn("Корректировка баланса отложена: хранилище недоступно")
		h.send(ctx, chatID, "⏳ Хранилище временно недоступно, повторите позже")
	default:
		log.WithError(err).WithFields(log.Fields{
			"chat_id":  chatID,
			"admin_id": adminID,
			"user_id":  playerID,
		}).Error("Ошибка корректировки баланса")
		h.send(ctx, chatID, "❌ Не удалось изменить баланс")
	}
}

// HandleWallets показывает кошельки администраторов.
// В группе — текущего чата, в личке — чата из аргумента.
func (h *Handler) HandleWallets(ctx context.Context, chatID, adminID int64, private bool, args []string) {
	if !h.authorize(ctx, chatID, adminID, private) {
		return
	}

	target := chatID
	if private {
		id, ok := parseChatArg(args)
		if !ok || id == 0 {
			h.send(ctx, chatID, "❌ Использование: /кошельки <chat_id>")
			return
		}
		target = id
	}

	wallets := h.service.List(ctx, target)
	if len(wallets) == 0 {
		h.send(ctx, chatID, fmt.Sprintf("👛 В чате %d кошельков администраторов пока нет (потолок %s)",
			target, common.FormatPoints(h.service.Ceiling())))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👛 Кошельки администраторов (потолок %s)\n\n", common.FormatPoints(h.service.Ceiling())))
	for _, w := range wallets {
		refill := "ещё не пополнялся"
		if !w.LastRefill.IsZero() {
			refill = "пополнен " + common.FormatDateTime(w.LastRefill, h.loc)
		}
		sb.WriteString(fmt.Sprintf("id%d: %s, %s\n", w.AdminID, common.FormatPoints(w.Points), refill))
	}
	h.send(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleRefill пополняет кошельки вручную.
// В группе — текущий чат; в личке — "all" (по умолчанию) или chat_id.
func (h *Handler) HandleRefill(ctx context.Context, chatID, adminID int64, private bool, args []string) {
	if !h.authorize(ctx, chatID, adminID, private) {
		return
	}

	target := chatID
	if private {
		id, ok := parseChatArg(args)
		if !ok {
			h.send(ctx, chatID, "❌ Использование: /пополнить [all|<chat_id>]")
			return
		}
		target = id
	}

	report := h.service.Refill(ctx, target)
	h.send(ctx, chatID, RefillText(report))
}

// RefillText форматирует итог пополнения.
func RefillText(r *RefillReport) string {
	scope := "во всех чатах"
	if r.ChatID != 0 {
		scope = fmt.Sprintf("в чате %d", r.ChatID)
	}
	text := fmt.Sprintf("🔄 Кошельки администраторов %s пополнены до %s: %d",
		scope, common.FormatPoints(r.Ceiling), r.Refilled)
	if r.Failed > 0 {
		text += fmt.Sprintf("\n⚠️ Не сохранено в хранилище: %d", r.Failed)
	}
	return text
}

// authorize проверяет права. В личке дополнительно нужна сессия.
func (h *Handler) authorize(ctx context.Context, chatID, userID int64, private bool) bool {
	if !h.service.IsAdmin(userID) {
		h.send(ctx, chatID, "❌ "+common.ErrNotAdmin.Error())
		return false
	}
	if private && !h.service.Auth().HasSession(userID) {
		h.send(ctx, chatID, "🔐 Сначала войдите: /login <пароль>")
		return false
	}
	return true
}

func parseAdjustArgs(replyToID int64, args []string) (int64, int64, error) {
	switch {
	case replyToID != 0 && len(args) == 1:
		delta, err := strconv.ParseInt(args[0], 10, 64)
		return replyToID, delta, err
	case len(args) == 2:
		playerID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		delta, err := strconv.ParseInt(args[1], 10, 64)
		return playerID, delta, err
	}
	return 0, 0, errors.New("неверное число аргументов")
}

// parseChatArg разбирает "all" (или пусто) как 0, иначе chat_id.
func parseChatArg(args []string) (int64, bool) {
	if len(args) == 0 || strings.EqualFold(args[0], "all") || args[0] == "все" {
		return 0, true
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// rootMessage возвращает текст первой ошибки цепочки, без технических префиксов.
func rootMessage(err error) string {
	for _, target := range []error{common.ErrAdminWalletInsufficient, common.ErrInvalidAmount, common.ErrNotAdmin} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if err := h.sender.Send(ctx, chatID, text); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
