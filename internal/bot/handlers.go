package bot

import (
	"context"
	"fmt"
)

const defaultItemsLimit = 10

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Welcome to the onbid notice bot!

New public auction listings for %q are checked on schedule (%s) and posted to the configured chat.

Use /help for the full command reference.`, b.opts.Keyword, b.opts.Schedule))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `/check [keyword] - search now and post new listings
/status - schedule, polling and last check
/items [keyword] [n] - latest n stored listings (default 10)
/help - this message

Without a keyword the configured default is used.`)
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	kw, err := ParseKeywordArg(args, b.opts.Keyword)
	if err != nil {
		b.reply(chatID, "Usage: /check [keyword]: "+err.Error())
		return
	}

	b.reply(chatID, fmt.Sprintf("Checking %q...", kw))
	res, err := b.runner.Run(ctx, kw)
	if err != nil {
		b.log.Warn("manual check failed", "keyword", kw, "chat_id", chatID, "error", err)
	}
	b.send(withActions(chatID, FormatRunSummary(res, err), kw))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	info := StatusInfo{
		Keyword:  b.opts.Keyword,
		Schedule: b.opts.Schedule,
		Last:     b.runner.Last(),
	}
	if b.opts.NextRun != nil {
		info.NextRun = b.opts.NextRun()
	}

	settings, err := b.store.GetSettings(ctx)
	if err != nil {
		b.log.Error("get settings", "error", err)
	} else {
		info.Settings = settings
	}

	b.send(withActions(chatID, FormatStatus(info), b.opts.Keyword))
}

func (b *Bot) handleItems(ctx context.Context, chatID int64, args string) {
	kw, limit, err := ParseItemsArgs(args, b.opts.Keyword, defaultItemsLimit)
	if err != nil {
		b.reply(chatID, "Usage: /items [keyword] [n]: "+err.Error())
		return
	}

	state, err := b.store.Load(ctx, kw)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatItems(kw, state, limit))
}
