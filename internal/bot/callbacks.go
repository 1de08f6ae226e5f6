package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdCheck = "check"
	cmdItems = "items"

	maxCallbackData = 64
)

// withActions attaches "check again" and "items" buttons for keyword to a
// message. Keywords too long for callback data get no buttons.
func withActions(chatID int64, text, keyword string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)

	check, okCheck := callbackData(cmdCheck, keyword)
	items, okItems := callbackData(cmdItems, keyword)
	if !okCheck || !okItems {
		return msg
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", check),
			tgbotapi.NewInlineKeyboardButtonData("Stored items", items),
		),
	)
	return msg
}

func callbackData(action, keyword string) (string, bool) {
	data := action + ":" + keyword
	return data, len(data) <= maxCallbackData
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	b.ack(cb.ID, "")
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, keyword, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	b.log.Info("callback",
		"action", action,
		"keyword", keyword,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdCheck:
		b.startCheck(ctx, chatID, keyword)
	case cmdItems:
		b.handleItems(ctx, chatID, keyword)
	}
}
