package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"onbid_bot/internal/app"
	"onbid_bot/internal/bot"
	"onbid_bot/internal/checker"
	"onbid_bot/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	keyword := flag.String("keyword", cfg.SearchKeyword, "search keyword")
	flag.Parse()

	log := app.NewLogger(cfg.LogLevel)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("initialize", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	res, err := a.Checker.Run(ctx, *keyword)
	cancel()
	_ = a.Close()

	fmt.Println(bot.FormatRunSummary(res, err))
	if err != nil {
		log.Error("check failed", "kind", checker.Kind(err), "error", err)
		os.Exit(1)
	}
	if !res.Notified {
		os.Exit(2)
	}
}
