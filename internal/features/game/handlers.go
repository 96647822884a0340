// Package game — handlers.go обрабатывает игровые команды чата
// (ставка, статус, старт/стоп, история, рейтинг, баланс) и объявляет
// этапы раундов.
package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
	"github.com/rgndice/dicebot/internal/features/wallet"
	"github.com/rgndice/dicebot/internal/telegram"
)

// ErrBetUsage — текст не похож на ставку.
var ErrBetUsage = errors.New("формат ставки: <тип> <сумма>")

// RoundControl запускает и останавливает циклы раундов.
type RoundControl interface {
	Start(ctx context.Context, chatID int64) (*Status, error)
	Stop(ctx context.Context, chatID int64) (*StopResult, error)
	Running(chatID int64) bool
}

// Handler обрабатывает игровые команды.
type Handler struct {
	service   *Service
	wallets   *wallet.Service
	rounds    RoundControl
	sender    telegram.Sender
	betWindow time.Duration
	loc       *time.Location
}

// NewHandler создаёт обработчик игровых команд.
func NewHandler(service *Service, wallets *wallet.Service, rounds RoundControl, sender telegram.Sender, betWindow time.Duration, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		service:   service,
		wallets:   wallets,
		rounds:    rounds,
		sender:    sender,
		betWindow: betWindow,
		loc:       loc,
	}
}

// ParseBet разбирает ставку из двух слов: "big 500", "b 500", "500 б".
func ParseBet(words []string) (Category, int64, error) {
	if len(words) != 2 {
		return 0, 0, ErrBetUsage
	}
	category, err := ParseCategory(words[0])
	amountText := words[1]
	if err != nil {
		category, err = ParseCategory(words[1])
		amountText = words[0]
	}
	if err != nil {
		return 0, 0, err
	}

	amount, err := strconv.ParseInt(strings.ReplaceAll(amountText, "_", ""), 10, 64)
	if err != nil {
		return 0, 0, ErrBetUsage
	}
	if amount <= 0 {
		return 0, 0, common.ErrInvalidAmount
	}
	return category, amount, nil
}

// HandleBet обрабатывает ставку. quiet — ставка распознана в обычном
// сообщении: отсутствие раунда в этом случае не комментируется.
func (h *Handler) HandleBet(ctx context.Context, chatID, userID int64, username, firstName string, args []string, quiet bool) {
	name := common.DisplayName(username, firstName, userID)
	category, amount, err := ParseBet(args)
	if err != nil {
		if !quiet {
			h.send(ctx, chatID, "❌ "+betErrorText(err, h.service.Rules())+"\nПример: !ставка big 500")
		}
		return
	}

	conf, err := h.service.PlaceBet(ctx, chatID, userID, username, category, amount)
	if err != nil {
		if quiet && errors.Is(err, common.ErrNoActiveGame) {
			return
		}
		if !isUserError(err) {
			log.WithError(err).WithFields(log.Fields{
				"chat_id": chatID,
				"user_id": userID,
			}).Error("Ошибка приёма ставки")
		}
		h.send(ctx, chatID, fmt.Sprintf("❌ %s: %s", name, betErrorText(err, h.service.Rules())))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ %s: %s на %s %s\n", name, common.FormatPoints(conf.Amount), conf.Category.Emoji(), conf.Category))
	if conf.StakeTotal != conf.Amount {
		sb.WriteString(fmt.Sprintf("Всего на %s: %s\n", conf.Category, common.FormatPoints(conf.StakeTotal)))
	}
	sb.WriteString(consumptionText(conf.Consumed))
	sb.WriteString(fmt.Sprintf("\n💰 Доступно: %s", common.FormatPoints(conf.Available)))
	h.send(ctx, chatID, sb.String())
}

// HandleStatus показывает состояние текущего раунда.
func (h *Handler) HandleStatus(ctx context.Context, chatID int64) {
	st, err := h.service.Status(ctx, chatID)
	switch {
	case errors.Is(err, common.ErrPersistenceUnavailable):
		h.send(ctx, chatID, "❌ "+storageBusyText)
		return
	case err != nil:
		h.send(ctx, chatID, "🎲 Раунд не запущен. Начать: !играть")
		return
	}
	h.send(ctx, chatID, StatusText(st))
}

// HandleStart запускает цикл раундов в чате.
func (h *Handler) HandleStart(ctx context.Context, chatID int64) {
	_, err := h.rounds.Start(ctx, chatID)
	switch {
	case err == nil:
		// Объявление об открытии раунда придёт из цикла раундов
	case errors.Is(err, common.ErrGameInProgress):
		h.send(ctx, chatID, "🎲 Раунд уже идёт. Статус: !раунд")
	case errors.Is(err, common.ErrStopCooldown):
		h.send(ctx, chatID, "⏳ Игру недавно остановили, попробуйте чуть позже")
	case errors.Is(err, common.ErrPersistenceUnavailable):
		log.WithError(err).WithField("chat_id", chatID).Warn("Раунд не запущен: состояние чата не прочитано")
		h.send(ctx, chatID, "❌ Не удалось запустить раунд: "+storageBusyText)
	default:
		log.WithError(err).WithField("chat_id", chatID).Error("Не удалось запустить раунд")
		h.send(ctx, chatID, "❌ Не удалось запустить раунд")
	}
}

// HandleStop останавливает игру и возвращает ставки (только для админов).
func (h *Handler) HandleStop(ctx context.Context, chatID int64) {
	res, err := h.rounds.Stop(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrNoActiveGame) {
			h.send(ctx, chatID, "🎲 Нет раунда, который можно остановить")
			return
		}
		log.WithError(err).WithField("chat_id", chatID).Error("Не удалось остановить раунд")
		h.send(ctx, chatID, "❌ Не удалось остановить раунд")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛑 Раунд #%d остановлен администратором\n", res.MatchID))
	if len(res.Refunds) == 0 {
		sb.WriteString("Ставок не было")
	} else {
		sb.WriteString(fmt.Sprintf("Возвращено: %s\n", common.FormatPoints(res.TotalRefunded)))
		for _, r := range res.Refunds {
			sb.WriteString(fmt.Sprintf("↩️ %s: %s\n", playerName(r.Username, r.PlayerID), common.FormatPoints(r.Amount)))
		}
	}
	h.send(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleHistory показывает последние матчи чата.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, args []string) {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	history := h.service.History(ctx, chatID, limit)
	if len(history) == 0 {
		h.send(ctx, chatID, "📜 Матчей пока не было")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 ИСТОРИЯ МАТЧЕЙ\n\n")
	for _, m := range history {
		sb.WriteString(fmt.Sprintf("#%d  🎲 %s → %s %s  (ставки %s, выплачено %s)\n",
			m.MatchID, m.Dice, m.Winning.Emoji(), m.Winning,
			common.FormatNumber(m.TotalStaked), common.FormatNumber(m.TotalPaid)))
	}
	h.send(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleLeaderboard показывает игроков с наибольшим основным балансом.
func (h *Handler) HandleLeaderboard(ctx context.Context, chatID int64) {
	top := h.wallets.Top(ctx, chatID, 10)
	if len(top) == 0 {
		h.send(ctx, chatID, "🏆 Рейтинг пуст")
		return
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 ТОП ИГРОКОВ\n\n")
	for i, w := range top {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %s\n", place, playerName(w.Username, w.PlayerID), common.FormatPoints(w.MainBalance)))
	}
	h.send(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// HandleBalance показывает кошелёк игрока в чате.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64, username, firstName string) {
	name := common.DisplayName(username, firstName, userID)
	snap, err := h.wallets.Snapshot(ctx, userID, chatID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).Warn("Не удалось показать кошелёк")
		h.send(ctx, chatID, "❌ "+storageBusyText)
		return
	}
	text := fmt.Sprintf(
		"👛 %s\n\n💰 Основной: %s\n🤝 Реферальные: %s\n🎁 Бонусные: %s\n\n🎲 Ставок: %d  ✅ Побед: %d  ❌ Поражений: %d",
		name,
		common.FormatPoints(snap.MainBalance),
		common.FormatPoints(snap.ReferralPoints),
		common.FormatPoints(snap.BonusPoints),
		snap.TotalBets, snap.TotalWins, snap.TotalLosses,
	)
	h.send(ctx, chatID, text)
}

// AnnounceOpened объявляет новый раунд.
func (h *Handler) AnnounceOpened(ctx context.Context, st *Status) {
	rules := h.service.Rules()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 РАУНД #%d\n\n", st.MatchID))
	sb.WriteString(fmt.Sprintf("Ставки принимаются %d сек.\n", int(h.betWindow.Seconds())))
	for _, c := range Categories {
		sb.WriteString(fmt.Sprintf("%s %s — %s ×%s\n", c.Emoji(), c, categoryRange(c), rules.Multipliers[c]))
	}
	sb.WriteString(fmt.Sprintf("\nСтавка: b 500 / s 500 / l 500 (от %s до %s)",
		common.FormatNumber(rules.MinBet), common.FormatNumber(rules.MaxBet)))
	h.send(ctx, st.ChatID, sb.String())
}

// AnnounceClosed объявляет закрытие приёма ставок.
func (h *Handler) AnnounceClosed(ctx context.Context, st *Status) {
	if len(st.Participants) == 0 {
		h.send(ctx, st.ChatID, fmt.Sprintf("⏱ Раунд #%d: ставки закрыты, ставок нет. Бросаем…", st.MatchID))
		return
	}
	h.send(ctx, st.ChatID, fmt.Sprintf("⏱ Ставки закрыты!\n\n%s\n\nБросаем кости…", totalsText(st.Totals)))
}

// AnnounceSettled публикует итоги раунда.
func (h *Handler) AnnounceSettled(ctx context.Context, s *Settlement) {
	h.send(ctx, s.ChatID, SettlementText(s))
}

// AnnouncePaused сообщает, что игра встала из-за простоя.
func (h *Handler) AnnouncePaused(ctx context.Context, s *Settlement) {
	h.send(ctx, s.ChatID, fmt.Sprintf("💤 %d %s подряд без ставок, игра на паузе. Продолжить: !играть",
		s.IdleRounds, common.PluralizeRounds(int64(s.IdleRounds))))
}

// AnnounceFailed сообщает об аварийной остановке цикла раундов.
func (h *Handler) AnnounceFailed(ctx context.Context, chatID int64) {
	h.send(ctx, chatID, "⚠️ Игра остановлена из-за ошибки. Ставки текущего раунда сохранены, запустите заново: !играть")
}

// StatusText форматирует состояние раунда.
func StatusText(st *Status) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 Раунд #%d — %s\n", st.MatchID, stateText(st.State)))
	if st.Result != nil {
		sb.WriteString(fmt.Sprintf("Выпало: %s\n", st.Result))
	}
	sb.WriteString(fmt.Sprintf("Игроков: %d\n\n", len(st.Participants)))
	sb.WriteString(totalsText(st.Totals))
	return sb.String()
}

// SettlementText форматирует итоги раунда.
func SettlementText(s *Settlement) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 Раунд #%d: %s\n", s.MatchID, s.Dice))
	sb.WriteString(fmt.Sprintf("Победила ставка %s %s (×%s)\n", s.Winning.Emoji(), s.Winning, s.Multiplier))

	if s.Idle() {
		sb.WriteString("\nСтавок не было")
		return sb.String()
	}

	if len(s.Winners) > 0 {
		sb.WriteString("\n🏆 Выиграли:\n")
		for _, r := range s.Winners {
			sb.WriteString(fmt.Sprintf("  %s: %s → +%s\n", playerName(r.Username, r.PlayerID),
				common.FormatNumber(r.Stake), common.FormatPoints(r.Payout)))
		}
	} else {
		sb.WriteString("\nНикто не угадал\n")
	}
	if len(s.Losers) > 0 {
		sb.WriteString("\n💸 Проиграли:\n")
		for _, r := range s.Losers {
			sb.WriteString(fmt.Sprintf("  %s: −%s на %s\n", playerName(r.Username, r.PlayerID),
				common.FormatPoints(r.Stake), r.Category))
		}
	}
	sb.WriteString(fmt.Sprintf("\nПоставлено: %s, выплачено: %s",
		common.FormatPoints(s.TotalStaked), common.FormatPoints(s.TotalPaid)))
	return sb.String()
}

func totalsText(totals map[Category]int64) string {
	lines := make([]string, 0, len(Categories))
	for _, c := range Categories {
		lines = append(lines, fmt.Sprintf("%s %s: %s", c.Emoji(), c, common.FormatNumber(totals[c])))
	}
	return strings.Join(lines, "\n")
}

func consumptionText(c wallet.Consumption) string {
	var parts []string
	if c.Referral > 0 {
		parts = append(parts, "реферальные −"+common.FormatNumber(c.Referral))
	}
	if c.Bonus > 0 {
		parts = append(parts, "бонусные −"+common.FormatNumber(c.Bonus))
	}
	if c.Main > 0 {
		parts = append(parts, "основной −"+common.FormatNumber(c.Main))
	}
	return "Списано: " + strings.Join(parts, ", ")
}

func stateText(s State) string {
	switch s {
	case StateWaiting:
		return "приём ставок"
	case StateClosed:
		return "ставки закрыты"
	case StateOver:
		return "завершён"
	}
	return s.String()
}

func categoryRange(c Category) string {
	switch c {
	case CategoryBig:
		return "сумма 8–12"
	case CategorySmall:
		return "сумма 2–6"
	case CategoryLucky:
		return "ровно 7"
	}
	return ""
}

func playerName(username string, playerID int64) string {
	return common.DisplayName(username, "", playerID)
}

const storageBusyText = "хранилище временно недоступно, попробуйте чуть позже"

// isUserError — ошибка вызвана вводом игрока, а не сбоем.
func isUserError(err error) bool {
	for _, target := range []error{
		common.ErrNoActiveGame, common.ErrGameClosed, common.ErrInvalidBetType,
		common.ErrBetTooSmall, common.ErrBetTooLarge, common.ErrInsufficientFunds,
		common.ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func betErrorText(err error, rules Rules) string {
	switch {
	case errors.Is(err, common.ErrNoActiveGame):
		return "раунд не запущен. Начать: !играть"
	case errors.Is(err, common.ErrGameClosed):
		return "ставки на этот раунд уже закрыты"
	case errors.Is(err, common.ErrInvalidBetType):
		return "тип ставки: big / small / lucky"
	case errors.Is(err, common.ErrBetTooSmall):
		return "минимальная ставка " + common.FormatPoints(rules.MinBet)
	case errors.Is(err, common.ErrBetTooLarge):
		return "максимальная ставка " + common.FormatPoints(rules.MaxBet)
	case errors.Is(err, common.ErrInsufficientFunds):
		return "недостаточно очков"
	case errors.Is(err, common.ErrInvalidAmount):
		return "сумма должна быть положительной"
	case errors.Is(err, ErrBetUsage):
		return ErrBetUsage.Error()
	case errors.Is(err, common.ErrPersistenceUnavailable):
		return storageBusyText
	}
	return "не удалось принять ставку"
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if err := h.sender.Send(ctx, chatID, text); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
