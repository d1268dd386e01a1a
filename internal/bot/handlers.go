package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"sqdc-watcher/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RuleStore is the rule CRUD surface exposed to users.
type RuleStore interface {
	AddRule(rule models.NotificationRule) (bool, error)
	DeleteRule(username, keyword string) (bool, error)
	ListRulesForUser(username string) ([]models.NotificationRule, error)
}

// ServeCommands handles bot commands until ctx is cancelled. It is
// meant to run on its own goroutine next to the scan loop; both only
// ever touch the store through self-contained transactions.
func ServeCommands(ctx context.Context, bot *tgbotapi.BotAPI, store RuleStore) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		parts := strings.Fields(update.Message.Text)
		if len(parts) == 0 {
			continue
		}
		command := strings.ToLower(parts[0])
		// Strip the @botname suffix used in group chats.
		if idx := strings.Index(command, "@"); idx > 0 {
			command = command[:idx]
		}

		username := senderName(update.Message)
		chatID := update.Message.Chat.ID

		var response string
		switch command {
		case "/start", "/help":
			response = helpText
		case "/list":
			response = handleList(store, username)
		case "/add":
			response = handleAdd(store, username, chatID, parts[1:])
		case "/delete":
			response = handleDelete(store, username, parts[1:])
		default:
			response = "Unrecognized command. Use /help to see the available commands."
		}

		msg := tgbotapi.NewMessage(chatID, response)
		if _, err := bot.Send(msg); err != nil {
			log.Printf("Failed to reply to @%s: %v", username, err)
		}
	}

	log.Println("Command listener stopped.")
}

const helpText = `SQDC stock watcher

Available commands:

/add <keyword> - get a direct message whenever a new in-stock product matches the keyword
/list - list your registered keywords
/delete <keyword> - stop watching a keyword
/help - show this message`

func handleList(store RuleStore, username string) string {
	rules, err := store.ListRulesForUser(username)
	if err != nil {
		log.Printf("Listing rules for @%s failed: %v", username, err)
		return "Something went wrong while listing your keywords. Please try again."
	}
	if len(rules) == 0 {
		return "You do not have any keyword trigger registered yet."
	}

	word := "keyword"
	if len(rules) > 1 {
		word = "keywords"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have *%d registered %s:*\n", len(rules), word)
	for _, rule := range rules {
		b.WriteString("- " + rule.Keyword + "\n")
	}
	return b.String()
}

func handleAdd(store RuleStore, username string, chatID int64, args []string) string {
	if len(args) == 0 {
		return "Usage: /add <keyword>"
	}
	keyword := strings.Join(args, " ")

	added, err := store.AddRule(models.NotificationRule{Username: username, Keyword: keyword, ChatID: chatID})
	if err != nil {
		log.Printf("Adding rule %q for @%s failed: %v", keyword, username, err)
		return "Something went wrong while adding the keyword. Please try again."
	}
	if !added {
		return fmt.Sprintf("Keyword *%s* is already registered.", keyword)
	}
	return fmt.Sprintf("*%s* keyword added. You will receive a notification whenever a match is found in new products.", keyword)
}

func handleDelete(store RuleStore, username string, args []string) string {
	if len(args) == 0 {
		return "Usage: /delete <keyword>"
	}
	keyword := strings.Join(args, " ")

	removed, err := store.DeleteRule(username, keyword)
	if err != nil {
		log.Printf("Deleting rule %q for @%s failed: %v", keyword, username, err)
		return "Something went wrong while deleting the keyword. Please try again."
	}
	if !removed {
		return fmt.Sprintf("Could not delete *%s* because it was not registered.", keyword)
	}
	return fmt.Sprintf("Keyword *%s* was removed.", keyword)
}

func senderName(message *tgbotapi.Message) string {
	if message.From != nil && message.From.UserName != "" {
		return message.From.UserName
	}
	return strconv.FormatInt(message.Chat.ID, 10)
}
