// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"

	"gopkg.in/telebot.v3"
)

const alertPrefix = "⚠️ ContestDojo verifier: "

// sender is the part of *telebot.Bot used for alerts.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// OpsNotifier implements alert.Notifier by messaging an operator Telegram chat.
type OpsNotifier struct {
	bot    sender
	chatID int64
}

// NewOpsNotifier creates a notifier backed by a Telegram bot. The token is
// checked against the Telegram API; no updates are polled.
func NewOpsNotifier(token string, chatID int64) (*OpsNotifier, error) {
	b, err := telebot.NewBot(telebot.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create ops telegram bot: %w", err)
	}
	return newOpsNotifier(b, chatID), nil
}

func newOpsNotifier(b sender, chatID int64) *OpsNotifier {
	return &OpsNotifier{bot: b, chatID: chatID}
}

// Alert sends text to the operator chat.
func (n *OpsNotifier) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipient := &telebot.Chat{ID: n.chatID}
	_, err := n.bot.Send(recipient, alertPrefix+text, &telebot.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("failed to send ops alert to chat %d: %w", n.chatID, err)
	}
	return nil
}
