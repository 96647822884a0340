package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser("Dice_Bot")

	tests := []struct {
		text  string
		cmd   string
		args  []string
		isCmd bool
	}{
		{"!ставка big 500", "ставка", []string{"big", "500"}, true},
		{".Баланс", "баланс", nil, true},
		{"/bet@dice_bot b 100", "bet", []string{"b", "100"}, true},
		{"/bet@other_bot b 100", "", nil, false},
		{"  /start ref_42 ", "start", []string{"ref_42"}, true},
		{"просто текст", "", nil, false},
		{"!", "", nil, false},
		{"/@dice_bot", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.isCmd, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestParseShorthandBet(t *testing.T) {
	p := NewCommandParser("dice_bot")

	words, ok := p.ParseShorthandBet("b 500")
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "500"}, words)

	_, ok = p.ParseShorthandBet("мал 100")
	assert.True(t, ok)

	for _, text := range []string{"привет всем", "b", "big big", "b 500 сейчас", "b 0"} {
		_, ok := p.ParseShorthandBet(text)
		assert.False(t, ok, text)
	}
}
