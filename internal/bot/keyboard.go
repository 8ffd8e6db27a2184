package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/dosebot/internal/domain"
)

const postponeButtonsPerRow = 4

// Take / postpone keyboard attached to a dose reminder
func doseKeyboard(medicationID string, occurrence time.Time) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Take", takeData(medicationID, occurrence)),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Postpone", optionsData(medicationID, occurrence)),
		),
	)
}

// Confirmation prompt before recording a dose
func confirmKeyboard(medicationID string, occurrence time.Time) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, I took it", confirmData(medicationID, occurrence)),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", actionCancel),
		),
	)
}

// Postpone targets for the rest of the day. Nil when none are left.
func postponeKeyboard(medicationID string, occurrence time.Time, options []domain.Clock) *tgbotapi.InlineKeyboardMarkup {
	if len(options) == 0 {
		return nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.String(), postponeData(medicationID, occurrence, c)))
		if len(row) == postponeButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", actionCancel),
	))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

// Today keyboard: one take button per medication with a pending dose
func todayKeyboard(entries []domain.DailyEntry) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, e := range entries {
		if !e.HasNext {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ %s %s", domain.FormatClock(e.Next), truncate(e.Medication.Name, 25)),
				takeData(e.Medication.ID, e.Next),
			),
		))
		if len(rows) >= 10 {
			break
		}
	}

	if len(rows) == 0 {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
