package middleware

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic гасит панику обработчика апдейта и пишет стек в лог.
// Вызывается через defer первой строкой обработчика.
func RecoverFromPanic() {
	if r := recover(); r != nil {
		LogPanic(r)
	}
}

// LogPanic пишет восстановленную панику в лог. Используется и как
// PanicHandler пула воркеров.
func LogPanic(r any) {
	log.WithFields(log.Fields{
		"component": "panic_recovery",
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	}).Error("ПАНИКА в обработчике — восстановлено")
}
