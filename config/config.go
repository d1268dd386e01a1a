package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken  string
	TelegramChannelID int64
	SlackWebhookURL   string
	SlackToken        string

	DatabasePath    string
	DisplayFormat   string
	PrimaryCategory string

	ScanInterval     time.Duration
	MinFetchInterval time.Duration
	Cooldown         time.Duration
	NoCache          bool
	MaxPages         int
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		SlackWebhookURL:  os.Getenv("SLACK_WEBHOOK_URL"),
		SlackToken:       os.Getenv("SLACK_TOKEN"),
		DatabasePath:     getenv("DATABASE_PATH", "./sqdc.db"),
		DisplayFormat:    getenv("DISPLAY_FORMAT", "table"),
		PrimaryCategory:  getenv("PRIMARY_CATEGORY", "Dried flowers"),
		ScanInterval:     minutesEnv("SCAN_INTERVAL_MINUTES", 5),
		MinFetchInterval: minutesEnv("MIN_FETCH_INTERVAL_MINUTES", 15),
		Cooldown:         time.Duration(intEnv("NOTIFICATION_COOLDOWN_HOURS", 12)) * time.Hour,
		NoCache:          boolEnv("NO_CACHE"),
		MaxPages:         intEnv("MAX_PAGES", 0),
	}

	if cfg.TelegramBotToken == "" && cfg.SlackWebhookURL == "" {
		return nil, fmt.Errorf("no notification sink configured: set TELEGRAM_BOT_TOKEN or SLACK_WEBHOOK_URL")
	}

	if chatIDStr := os.Getenv("TELEGRAM_CHANNEL_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHANNEL_ID %q: %w", chatIDStr, err)
		}
		cfg.TelegramChannelID = chatID
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func minutesEnv(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Minute
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
