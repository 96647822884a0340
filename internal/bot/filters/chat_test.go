package filters

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

func message(chatID int64, chatType string, from *telego.User) *telego.Message {
	return &telego.Message{
		Chat: telego.Chat{ID: chatID, Type: chatType},
		From: from,
		Text: "/play",
	}
}

func TestCheckAccess(t *testing.T) {
	player := &telego.User{ID: 7, FirstName: "Игрок"}
	bot := &telego.User{ID: 8, IsBot: true}

	restricted := NewChatFilter([]int64{-100})
	open := NewChatFilter(nil)

	tests := []struct {
		name   string
		filter *ChatFilter
		msg    *telego.Message
		want   bool
	}{
		{"nil message", open, nil, false},
		{"private", restricted, message(7, telego.ChatTypePrivate, player), true},
		{"allowed group", restricted, message(-100, telego.ChatTypeSupergroup, player), true},
		{"other group", restricted, message(-200, telego.ChatTypeGroup, player), false},
		{"any group when list empty", open, message(-200, telego.ChatTypeGroup, player), true},
		{"channel", open, message(-300, telego.ChatTypeChannel, player), false},
		{"no sender", open, message(-100, telego.ChatTypeGroup, nil), false},
		{"bot sender", open, message(-100, telego.ChatTypeGroup, bot), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.CheckAccess(tt.msg))
		})
	}
}
