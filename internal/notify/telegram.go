package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ezbridge/internal/core"
)

// TelegramNotifier sends privacy change messages to a Telegram chat
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier. It validates the bot
// token against the Telegram API.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
	}, nil
}

// Name returns the channel name
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Notify sends the formatted change message to the configured chat
func (t *TelegramNotifier) Notify(ctx context.Context, evt core.ChangeEvent) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatChange(evt))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
