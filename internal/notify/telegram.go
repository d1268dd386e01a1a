package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink delivers notifications through a Telegram bot: the
// broadcast goes to the configured channel, direct messages to the
// chat recorded when the user registered a rule.
type TelegramSink struct {
	bot       *tgbotapi.BotAPI
	channelID int64
}

// NewTelegramSink wraps an authorized bot.
func NewTelegramSink(bot *tgbotapi.BotAPI, channelID int64) *TelegramSink {
	return &TelegramSink{bot: bot, channelID: channelID}
}

// Broadcast sends the text to the shared channel.
func (s *TelegramSink) Broadcast(text string) error {
	if s.channelID == 0 {
		return fmt.Errorf("no channel configured for broadcast")
	}
	_, err := s.bot.Send(tgbotapi.NewMessage(s.channelID, text))
	return err
}

// DirectMessage sends the text to the user's own chat.
func (s *TelegramSink) DirectMessage(username string, chatID int64, text string) error {
	if chatID == 0 {
		return fmt.Errorf("no chat known for @%s", username)
	}
	_, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
