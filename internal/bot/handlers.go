package bot

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/service"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		b.SendMessage(chatID, "⛔ Access denied")
		return
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, user)
		return
	}

	if medID, ok := b.awaitingFor(chatID); ok {
		b.setCustomNext(ctx, chatID, user, medID, text)
		return
	}

	b.SendMessage(chatID, "Send /today to see your doses or /help for the commands.")
}

// ensureUser registers chat users on first contact.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*domain.User, error) {
	name := from.FirstName
	if from.LastName != "" {
		name += " " + from.LastName
	}
	return b.users.EnsureTelegramUser(ctx, from.ID, name)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.From == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	msgID := cq.Message.MessageID

	if !b.cfg.IsAllowedUser(cq.From.ID) {
		b.answer(cq.ID, "⛔ Access denied")
		return
	}

	user, err := b.ensureUser(ctx, cq.From)
	if err != nil {
		b.answer(cq.ID, "Registration failed")
		b.log.Error().Err(err).Int64("telegram_id", cq.From.ID).Msg("ensure user")
		return
	}

	data, err := parseCallback(cq.Data)
	if err != nil {
		b.log.Warn().Err(err).Msg("callback")
		b.answer(cq.ID, "Unknown action")
		return
	}
	occurrence := time.UnixMilli(data.Occurrence).In(b.location)

	switch data.Action {
	case actionTake:
		m, err := b.meds.Get(ctx, user.ID, data.MedicationID)
		if err != nil {
			b.answer(cq.ID, userMessage(err))
			return
		}
		b.answer(cq.ID, "")
		kb := confirmKeyboard(m.ID, occurrence)
		b.editMessage(chatID, msgID, confirmPrompt(m, occurrence), &kb)

	case actionConfirm:
		result, err := b.doses.Take(ctx, service.TakeRequest{
			UserID:       user.ID,
			MedicationID: data.MedicationID,
			Occurrence:   occurrence,
			Confirmed:    true,
		})
		if err != nil {
			b.answer(cq.ID, userMessage(err))
			return
		}
		b.answer(cq.ID, "✅ Recorded")
		b.editMessage(chatID, msgID, html.EscapeString(service.ConfirmationMessage(result)), nil)
		b.afterTake(chatID, result)

	case actionCancel:
		result, _ := b.doses.Take(ctx, service.TakeRequest{UserID: user.ID, Confirmed: false})
		b.answer(cq.ID, "")
		b.editMessage(chatID, msgID, service.ConfirmationMessage(result), nil)

	case actionOptions:
		kb := postponeKeyboard(data.MedicationID, occurrence, b.doses.PostponeOptions())
		if kb == nil {
			b.answer(cq.ID, "No later time left today")
			return
		}
		b.answer(cq.ID, "")
		b.editMessage(chatID, msgID, "⏰ Postpone to:", kb)

	case actionPostpone:
		result, err := b.doses.Postpone(ctx, service.PostponeRequest{
			UserID:       user.ID,
			MedicationID: data.MedicationID,
			Occurrence:   occurrence,
			Clock:        data.Clock,
		})
		if err != nil {
			b.answer(cq.ID, userMessage(err))
			return
		}
		b.answer(cq.ID, "⏰ Postponed")
		b.editMessage(chatID, msgID, postponedText(result), nil)
	}
}

// afterTake asks for the next dose time of custom medications.
func (b *Bot) afterTake(chatID int64, result service.TakeResult) {
	if result.NotifyErr != nil {
		b.log.Warn().Err(result.NotifyErr).Msg("dose recorded without reminders")
	}
	if result.Decision != service.DecisionNeedsCustomInput || result.Medication == nil {
		return
	}
	b.expectCustomNext(chatID, result.Medication.ID)
}

func (b *Bot) setCustomNext(ctx context.Context, chatID int64, user *domain.User, medicationID, text string) {
	date, clock := splitDateTime(text)
	result, err := b.doses.SetCustomNext(ctx, service.CustomNextRequest{
		UserID:       user.ID,
		MedicationID: medicationID,
		Date:         date,
		Time:         clock,
	})
	if err != nil {
		b.replyError(chatID, err)
		if !errors.Is(err, domain.ErrValidation) {
			b.clearAwaiting(chatID)
		}
		return
	}
	b.clearAwaiting(chatID)
	b.SendMessage(chatID, html.EscapeString(service.ConfirmationMessage(result)))
}

func (b *Bot) replyError(chatID int64, err error) {
	if errorIsInternal(err) {
		b.log.Error().Err(err).Int64("chat", chatID).Msg("request failed")
	}
	b.SendMessage(chatID, html.EscapeString(userMessage(err)))
}

func errorIsInternal(err error) bool {
	return !errors.Is(err, domain.ErrValidation) &&
		!errors.Is(err, domain.ErrPermissionDenied) &&
		!errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrIncompleteDoseData)
}

// userMessage is the short chat reply for err.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		msg := err.Error()
		if i := strings.LastIndex(msg, domain.ErrValidation.Error()+": "); i >= 0 {
			msg = msg[i+len(domain.ErrValidation.Error())+2:]
		}
		return "⚠️ " + msg
	case errors.Is(err, domain.ErrPermissionDenied):
		return "⛔ This medication belongs to someone else"
	case errors.Is(err, domain.ErrNotFound):
		return "Medication not found"
	case errors.Is(err, domain.ErrIncompleteDoseData):
		return "This dose is no longer pending, refresh with /today"
	default:
		return "❌ Something went wrong, try again later"
	}
}
