// Package bot serves the inbound command surface over Telegram:
// users list, add and delete their keyword notification rules.
package bot

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Init authorizes the bot with the given token.
func Init(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not configured, check the .env file")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("telegram token invalid or expired, check TELEGRAM_BOT_TOKEN in the .env file")
		}
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}

	bot.Debug = false
	log.Printf("Bot authorized as: %s", bot.Self.UserName)
	return bot, nil
}
