// Package common — errors.go определяет ошибки, общие для всех модулей бота.
// Обработчики различают их через errors.Is и отвечают игроку понятным текстом.
package common

import "errors"

// Ошибки состояния раунда
var (
	// ErrGameClosed — ставки на текущий раунд уже не принимаются
	ErrGameClosed = errors.New("приём ставок закрыт")
	// ErrGameInProgress — в чате уже идёт незавершённый раунд
	ErrGameInProgress = errors.New("в чате уже идёт раунд")
	// ErrInvalidStateTransition — недопустимый переход состояния раунда
	ErrInvalidStateTransition = errors.New("недопустимый переход состояния раунда")
	// ErrNoActiveGame — в чате нет активного раунда
	ErrNoActiveGame = errors.New("в чате нет активного раунда")
	// ErrStopCooldown — раунд недавно остановлен админом, новый пока нельзя начать
	ErrStopCooldown = errors.New("раунд недавно остановлен, подождите")
)

// Ошибки ставок
var (
	// ErrInvalidBetType — неизвестный тип ставки
	ErrInvalidBetType = errors.New("неизвестный тип ставки")
	// ErrBetTooSmall — ставка меньше минимальной
	ErrBetTooSmall = errors.New("ставка меньше минимальной")
	// ErrBetTooLarge — ставка больше максимальной
	ErrBetTooLarge = errors.New("ставка больше максимальной")
	// ErrInsufficientFunds — на балансе недостаточно очков
	ErrInsufficientFunds = errors.New("недостаточно очков на балансе")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки рефералов
var (
	// ErrSelfReferral — попытка пригласить самого себя
	ErrSelfReferral = errors.New("нельзя пригласить самого себя")
)

// Ошибки кэшбэка
var (
	// ErrCashbackAlreadyPaid — кэшбэк за этот день уже начислен
	ErrCashbackAlreadyPaid = errors.New("кэшбэк за этот день уже начислен")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrAdminWalletInsufficient — в кошельке админа не хватает очков
	ErrAdminWalletInsufficient = errors.New("в кошельке администратора недостаточно очков")
)

// Ошибки хранилища
var (
	// ErrNotFound — запись не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrPersistenceUnavailable — хранилище недоступно; игра продолжается в памяти
	ErrPersistenceUnavailable = errors.New("хранилище недоступно")
)
