// Package notify delivers operator alerts. The production implementation
// posts to a Telegram chat; a no-op stands in when no token is configured.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Alert(format string, args ...any)
}

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

func NewTelegram(botToken string, chatID int64, log *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

// Alert sends the message and logs the failure instead of propagating it:
// a broken alert channel must never fail the operation being reported.
func (t *Telegram) Alert(format string, args ...any) {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf(format, args...))
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Error("send telegram alert", "err", err)
	}
}

type Nop struct{}

func (Nop) Alert(string, ...any) {}
