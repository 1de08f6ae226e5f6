// Package bot implements the Telegram command interface for operators.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"onbid_bot/internal/config"
	"onbid_bot/internal/model"
	"onbid_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Runner runs check cycles on demand.
type Runner interface {
	Run(ctx context.Context, keyword string) (*model.RunResult, error)
	Last() *model.RunResult
}

// Options describes the schedule shown by /status.
type Options struct {
	Keyword  string
	Schedule string
	NextRun  func() time.Time
}

// Bot answers operator commands over Telegram long polling.
type Bot struct {
	api    telegramAPI
	runner Runner
	store  storage.Storage
	cfg    *config.Config
	opts   Options
	log    *slog.Logger

	checks sync.WaitGroup
}

// New creates a Bot with the given Telegram token.
func New(token string, runner Runner, store storage.Storage, cfg *config.Config, opts Options, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		runner: runner,
		store:  store,
		cfg:    cfg,
		opts:   opts,
		log:    log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every check it started has finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.checks.Wait()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			b.ack(update.CallbackQuery.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
		return
	}
	if !b.cfg.IsUserAllowed(update.Message.From.ID) {
		b.reply(update.Message.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, update.Message)
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdCheck:
		b.startCheck(ctx, chatID, args)
	case "status":
		b.handleStatus(ctx, chatID)
	case cmdItems:
		b.handleItems(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// startCheck runs the cycle off the update loop so other commands stay
// responsive while the browser works.
func (b *Bot) startCheck(ctx context.Context, chatID int64, args string) {
	b.checks.Add(1)
	go func() {
		defer b.checks.Done()
		b.handleCheck(ctx, chatID, args)
	}()
}
