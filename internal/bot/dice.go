package bot

import (
	"context"

	"github.com/rgndice/dicebot/internal/features/game"
)

// DiceThrower бросает один анимированный кубик в чате.
type DiceThrower interface {
	SendDice(ctx context.Context, chatID int64) (int, error)
}

// TelegramRoller бросает кости анимацией Telegram: игроки видят тот же
// результат, который идёт в расчёт.
type TelegramRoller struct {
	thrower DiceThrower
}

// NewTelegramRoller создаёт бросок через Telegram.
func NewTelegramRoller(thrower DiceThrower) *TelegramRoller {
	return &TelegramRoller{thrower: thrower}
}

// Roll реализует game.Roller.
func (r *TelegramRoller) Roll(ctx context.Context, chatID int64) (game.Dice, error) {
	var d game.Dice
	for i := range d {
		v, err := r.thrower.SendDice(ctx, chatID)
		if err != nil {
			return game.Dice{}, err
		}
		d[i] = v
	}
	return d, nil
}
