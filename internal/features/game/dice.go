package game

import (
	"context"
	"math/rand/v2"
)

// Roller бросает две кости для чата.
// Транспорт может бросать их анимацией Telegram, тесты подставляют фиксированный результат.
type Roller interface {
	Roll(ctx context.Context, chatID int64) (Dice, error)
}

// RandomRoller — равномерный бросок через генератор случайных чисел.
type RandomRoller struct{}

func (RandomRoller) Roll(context.Context, int64) (Dice, error) {
	return Dice{rand.IntN(6) + 1, rand.IntN(6) + 1}, nil
}

// RollerFunc позволяет использовать функцию как Roller.
type RollerFunc func(ctx context.Context, chatID int64) (Dice, error)

func (f RollerFunc) Roll(ctx context.Context, chatID int64) (Dice, error) {
	return f(ctx, chatID)
}
