package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"sqdc-watcher/config"
	"sqdc-watcher/internal/bot"
	"sqdc-watcher/internal/catalog"
	"sqdc-watcher/internal/database"
	"sqdc-watcher/internal/monitor"
	"sqdc-watcher/internal/notify"
	"sqdc-watcher/internal/scraper"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks notify.MultiSink
	var wg sync.WaitGroup

	if cfg.TelegramBotToken != "" {
		telegramBot, err := bot.Init(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram bot: %v", err)
		}
		sinks = append(sinks, notify.NewTelegramSink(telegramBot, cfg.TelegramChannelID))

		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.ServeCommands(ctx, telegramBot, db)
		}()
	}
	if cfg.SlackWebhookURL != "" || cfg.SlackToken != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackWebhookURL, cfg.SlackToken))
	}

	updater := catalog.NewUpdater(scraper.NewClient(), db)
	updater.MaxPages = cfg.MaxPages

	gate := notify.NewGate(db, sinks, cfg.PrimaryCategory)
	gate.Cooldown = cfg.Cooldown

	watcher := monitor.New(db, updater, gate, cfg.ScanInterval, cfg.MinFetchInterval, cfg.NoCache, cfg.DisplayFormat)

	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	wg.Wait()
}
