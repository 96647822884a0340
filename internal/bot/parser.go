package bot

import (
	"strings"

	"github.com/rgndice/dicebot/internal/features/game"
)

// CommandParser парсит команды с префиксами !, . и /.
type CommandParser struct {
	validPrefixes []string
	botUsername   string
}

// NewCommandParser создаёт парсер команд. botUsername нужен, чтобы
// понимать /bet@имя_бота в группах.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
		botUsername:   strings.ToLower(botUsername),
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Команда, адресованная другому боту (/bet@other_bot), не распознаётся.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if name, addressee, ok := strings.Cut(command, "@"); ok {
		if p.botUsername != "" && addressee != p.botUsername {
			return "", nil, false
		}
		command = name
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}

// ParseShorthandBet распознаёт ставку без команды: "b 500", "big 500", "мал 100".
func (p *CommandParser) ParseShorthandBet(text string) ([]string, bool) {
	words := strings.Fields(text)
	if _, _, err := game.ParseBet(words); err != nil {
		return nil, false
	}
	return words, true
}
