package bot

import (
	"context"
	"fmt"
	"html"

	"github.com/tazhate/dosebot/internal/domain"
)

// Deliver sends a fired notification to the owner's chat. Implements
// scheduler.Sender.
func (b *Bot) Deliver(ctx context.Context, n domain.ScheduledNotification) error {
	u, err := b.users.Get(ctx, n.Payload.UserID)
	if err != nil {
		return err
	}
	if u == nil || u.TelegramID == 0 {
		return fmt.Errorf("user %s has no chat: %w", n.Payload.UserID, domain.ErrNotFound)
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(n.Payload.Title), html.EscapeString(n.Payload.Body))
	occurrence := n.Payload.Occurrence.In(b.location)
	return b.SendMessageWithKeyboard(u.TelegramID, text, doseKeyboard(n.Payload.MedicationID, occurrence))
}

// CanDeliver reports whether the user has an allowed chat.
func (b *Bot) CanDeliver(ctx context.Context, userID string) (bool, error) {
	u, err := b.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if u == nil || u.TelegramID == 0 {
		return false, nil
	}
	return b.cfg.IsAllowedUser(u.TelegramID), nil
}
