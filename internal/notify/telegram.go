// Package notify delivers cycle results to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"onbid_bot/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends notifications to one chat through the Bot API.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram connects to the Bot API with token using client. The client's
// timeout bounds each request.
func NewTelegram(token string, chatID int64, client *http.Client, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Notify sends the formatted messages for items, then the screenshot when
// one is given. A failed photo upload is logged and does not fail Notify.
func (t *Telegram) Notify(ctx context.Context, items []model.Item, screenshot []byte) error {
	for i, text := range FormatMessages(items) {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if err := t.send(ctx, msg); err != nil {
			return fmt.Errorf("send message %d: %w", i+1, err)
		}
	}

	if len(screenshot) == 0 {
		return nil
	}
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{Name: "screenshot.png", Bytes: screenshot})
	if err := t.send(ctx, photo); err != nil {
		t.log.Warn("send screenshot", "chat_id", t.chatID, "error", err)
	}
	return nil
}

// send runs one API call and gives up when ctx is done. The call itself is
// bounded by the HTTP client timeout.
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.api.Send(c)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
