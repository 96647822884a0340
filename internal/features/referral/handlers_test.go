package referral_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgndice/dicebot/internal/features/referral"
)

type fakeSender struct {
	texts map[int64][]string
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	if s.texts == nil {
		s.texts = make(map[int64][]string)
	}
	s.texts[chatID] = append(s.texts[chatID], text)
	return nil
}

func TestDeepLinkThenJoin(t *testing.T) {
	s, wallets, _ := newService(t)
	sender := &fakeSender{}
	h := referral.NewHandler(s, sender, "dice_bot")
	ctx := context.Background()

	// Игрок 20 открыл ссылку игрока 10 в личке
	require.True(t, h.HandleStartPayload(ctx, 20, 20, []string{"ref_10"}))
	assert.Contains(t, sender.texts[20][0], "Приглашение принято")

	require.True(t, h.HandleStartPayload(ctx, 20, 20, []string{"ref_11"}))
	assert.Contains(t, sender.texts[20][1], "уже учтено")

	h.HandleJoin(ctx, chatID, 20, "@newbie")
	require.Len(t, sender.texts[chatID], 1)
	assert.Contains(t, sender.texts[chatID][0], "id10")
	assert.Equal(t, int64(1000), walletSnapshot(t, wallets, 10, chatID).ReferralPoints)

	// Повторное вступление ничего не начисляет и не пишет
	h.HandleJoin(ctx, chatID, 20, "@newbie")
	assert.Len(t, sender.texts[chatID], 1)
}

func TestStartPayloadIgnoresOtherArgs(t *testing.T) {
	s, _, _ := newService(t)
	h := referral.NewHandler(s, &fakeSender{}, "dice_bot")

	assert.False(t, h.HandleStartPayload(context.Background(), 20, 20, nil))
	assert.False(t, h.HandleStartPayload(context.Background(), 20, 20, []string{"promo"}))
}

func TestSelfReferralLink(t *testing.T) {
	s, _, _ := newService(t)
	sender := &fakeSender{}
	h := referral.NewHandler(s, sender, "dice_bot")

	require.True(t, h.HandleStartPayload(context.Background(), 10, 10, []string{"ref_10"}))
	assert.Contains(t, sender.texts[10][0], "самого себя")
}

func TestHandleLink(t *testing.T) {
	s, _, _ := newService(t)
	sender := &fakeSender{}
	h := referral.NewHandler(s, sender, "dice_bot")

	h.HandleLink(context.Background(), chatID, 42)
	assert.Contains(t, sender.texts[chatID][0], "https://t.me/dice_bot?start=ref_42")
	assert.Contains(t, sender.texts[chatID][0], "1 000 очков")
}
