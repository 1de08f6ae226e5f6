// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	AllowedUsers     []int64

	SearchKeyword  string
	ScrapeSchedule string

	StorageDriver   string
	DatabasePath    string
	DataDir         string
	FilterRulesFile string

	HTTPAddr      string
	OnbidBaseURL  string
	ChromePath    string
	ScrapeTimeout time.Duration
	NotifyTimeout time.Duration
	ScreenshotDir string

	LogLevel string
}

// LoadDotEnv loads variables from a .env file in the working directory.
// Variables already set in the environment win. A missing file is ignored.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rawChat := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	if rawChat == "" {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", rawChat, err)
	}

	allowedUsers, err := parseUserIDs(os.Getenv("ALLOWED_USERS"))
	if err != nil {
		return nil, err
	}

	schedule := os.Getenv("SCRAPE_SCHEDULE")
	if schedule == "" {
		schedule = os.Getenv("SCRAPE_INTERVAL")
	}
	if schedule == "" {
		schedule = "0 9 * * *"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid SCRAPE_SCHEDULE %q: %w", schedule, err)
	}

	driver := envOr("STORAGE_DRIVER", DriverSQLite)
	if driver != DriverSQLite && driver != DriverFile {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: want %q or %q", driver, DriverSQLite, DriverFile)
	}

	scrapeTimeout, err := durationEnv("SCRAPE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := durationEnv("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	screenshotDir, ok := os.LookupEnv("SCREENSHOT_DIR")
	if !ok {
		screenshotDir = "./data/screenshots"
	}

	return &Config{
		TelegramBotToken: token,
		TelegramChatID:   chatID,
		AllowedUsers:     allowedUsers,
		SearchKeyword:    envOr("SEARCH_KEYWORD", "사물함"),
		ScrapeSchedule:   schedule,
		StorageDriver:    driver,
		DatabasePath:     envOr("DATABASE_PATH", "./data/bot.db"),
		DataDir:          envOr("DATA_DIR", "./data"),
		FilterRulesFile:  os.Getenv("FILTER_RULES_FILE"),
		HTTPAddr:         envOr("HTTP_ADDR", ":3000"),
		OnbidBaseURL:     envOr("ONBID_BASE_URL", "https://www.onbid.co.kr"),
		ChromePath:       os.Getenv("CHROME_PATH"),
		ScrapeTimeout:    scrapeTimeout,
		NotifyTimeout:    notifyTimeout,
		ScreenshotDir:    screenshotDir,
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
