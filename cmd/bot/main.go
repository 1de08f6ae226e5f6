package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onbid_bot/internal/api"
	"onbid_bot/internal/app"
	"onbid_bot/internal/bot"
	"onbid_bot/internal/checker"
	"onbid_bot/internal/config"
	"onbid_bot/internal/scheduler"
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

	log := app.NewLogger(cfg.LogLevel)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("initialize", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.StartCron(ctx, cfg.ScrapeSchedule, func(ctx context.Context) {
		if _, err := a.Checker.Run(ctx, cfg.SearchKeyword); err != nil {
			log.Error("scheduled check failed", "kind", checker.Kind(err), "error", err)
		}
	}, log)
	if err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(a.Checker, a.Store, a.Metrics, log.With("component", "api"), api.Options{
		Addr:         cfg.HTTPAddr,
		Keyword:      cfg.SearchKeyword,
		CheckTimeout: cfg.ScrapeTimeout + cfg.NotifyTimeout + 30*time.Second,
	})
	if err := srv.ResumePolling(ctx); err != nil {
		log.Warn("resume polling", "error", err)
	}
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	b, err := bot.New(cfg.TelegramBotToken, a.Checker, a.Store, cfg, bot.Options{
		Keyword:  cfg.SearchKeyword,
		Schedule: cfg.ScrapeSchedule,
		NextRun:  sched.Next,
	}, log.With("component", "bot"))
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot", "keyword", cfg.SearchKeyword, "schedule", cfg.ScrapeSchedule)

	b.Run(ctx)

	sched.Stop()
	sched.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown http server", "error", err)
	}

	log.Info("bot stopped")
}
