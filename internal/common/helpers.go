// Package common содержит общие утилиты, используемые во всём проекте:
// склонение числительных, форматирование чисел, работа с часовыми поясами.
package common

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimezone — часовой пояс по умолчанию (Мьянма, UTC+6:30).
const DefaultTimezone = "Asia/Yangon"

// LoadLocation загружает часовой пояс по имени.
// Если tzdata недоступна — для Asia/Yangon используется фиксированный UTC+6:30, иначе UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	log.WithError(err).WithField("timezone", name).Warn("Не удалось загрузить часовой пояс")
	if name == DefaultTimezone {
		return time.FixedZone("MMT", 6*60*60+30*60)
	}
	return time.UTC
}

// FormatDateTime форматирует время в "02.01.2006 15:04" в указанном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// ParseClock разбирает время суток в формате "ЧЧ:ММ".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("некорректное время %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// DisplayName возвращает имя игрока для сообщений: @username или имя.
func DisplayName(username, firstName string, userID int64) string {
	if username != "" {
		return "@" + username
	}
	if firstName != "" {
		return firstName
	}
	return fmt.Sprintf("id%d", userID)
}
