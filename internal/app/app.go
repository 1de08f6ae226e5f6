// Package app wires configuration into the checker and its dependencies.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"onbid_bot/internal/checker"
	"onbid_bot/internal/config"
	"onbid_bot/internal/filter"
	"onbid_bot/internal/metrics"
	"onbid_bot/internal/notify"
	"onbid_bot/internal/scraper"
	"onbid_bot/internal/storage"
)

// App holds the long-lived components shared by the commands.
type App struct {
	Store   storage.Storage
	Checker *checker.Checker
	Metrics *metrics.Metrics
}

// New builds the store, scraper, notifier and checker described by cfg.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	rules, err := filter.LoadRules(cfg.FilterRulesFile)
	if err != nil {
		return nil, err
	}

	sc, err := scraper.NewChrome(scraper.Options{
		BaseURL:  cfg.OnbidBaseURL,
		ExecPath: cfg.ChromePath,
	}, log.With("component", "scraper"))
	if err != nil {
		return nil, err
	}

	n, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID,
		&http.Client{Timeout: cfg.NotifyTimeout}, log.With("component", "notify"))
	if err != nil {
		return nil, err
	}

	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	c := checker.New(sc, store, n, rules, m, log, checker.Options{
		ScrapeTimeout: cfg.ScrapeTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
		ScreenshotDir: cfg.ScreenshotDir,
	})

	return &App{Store: store, Checker: c, Metrics: m}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStorage opens the backend selected by cfg.StorageDriver.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverFile:
		return storage.NewFile(cfg.DataDir)
	case config.DriverSQLite, "":
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		store, err := storage.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// NewLogger returns a text logger on stderr at the named level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
