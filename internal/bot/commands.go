package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/service"
)

const defaultHistoryDays = 7

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.cmdStart(chatID, user)
	case "help":
		b.cmdHelp(chatID)
	case "today":
		b.cmdToday(ctx, chatID, user)
	case "meds":
		b.cmdMeds(ctx, chatID, user)
	case "add":
		b.cmdAdd(ctx, chatID, user, args)
	case "take":
		b.cmdTake(ctx, chatID, user, args)
	case "next":
		b.cmdNext(ctx, chatID, user, args)
	case "postpone":
		b.cmdPostpone(ctx, chatID, user, args)
	case "history":
		b.cmdHistory(ctx, chatID, user, args)
	case "reminders":
		b.cmdReminders(ctx, chatID, user, args)
	case "advance":
		b.cmdAdvance(ctx, chatID, user, args)
	case "delete":
		b.cmdDelete(ctx, chatID, user, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list")
	}
}

func (b *Bot) cmdStart(chatID int64, user *domain.User) {
	b.SendMessage(chatID, fmt.Sprintf("👋 Hi, %s!\n\nI will remind you of your medication doses.\n\n/help lists the commands", html.EscapeString(user.Name)))
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Doses</b>
/today · doses for today
/take N · take the next dose of item N of /today
/postpone N · postpone the next dose of item N of /today
/next N DD/MM/YYYY HH:MM · next dose of custom item N of /meds
/history [days] · recent doses

<b>Medications</b>
/meds · my medications
/add name; dose; unit; frequency; HH:MM, HH:MM
/delete N · remove item N of /meds

<b>Reminders</b>
/reminders [on|off]
/advance MINUTES · minutes of notice before each dose

Frequencies: 6h, 8h, 12h, 24h or custom`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdToday(ctx context.Context, chatID int64, user *domain.User) {
	entries, err := b.meds.Today(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	if len(entries) == 0 {
		b.SendMessage(chatID, "<b>💊 Today</b>\n\nNothing scheduled for today.")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>💊 Today</b>\n\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s %s", i+1, html.EscapeString(e.Medication.Name), html.EscapeString(e.Medication.Dosage())))
		if e.AllTaken {
			sb.WriteString(" · ✅ all taken")
		} else {
			sb.WriteString(" · next " + domain.FormatClock(e.Next))
		}
		sb.WriteString("\n")
	}

	if kb := todayKeyboard(entries); kb != nil {
		b.SendMessageWithKeyboard(chatID, sb.String(), *kb)
		return
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdMeds(ctx context.Context, chatID int64, user *domain.User) {
	meds, err := b.meds.List(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	if len(meds) == 0 {
		b.SendMessage(chatID, "<b>📋 Medications</b>\n\nNone yet. Add one with /add")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>📋 Medications</b>\n\n")
	for i, m := range meds {
		sb.WriteString(fmt.Sprintf("%d. <b>%s</b> %s · %s\n", i+1, html.EscapeString(m.Name), html.EscapeString(m.Dosage()), m.Frequency.Label()))
		if m.Instructions != "" {
			sb.WriteString("   " + html.EscapeString(m.Instructions) + "\n")
		}
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdAdd(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args == "" {
		b.SendMessage(chatID, "Use: /add Amoxicillin; 500; mg; 8h; 08:00, 16:00")
		return
	}

	in, err := parseAddArgs(args)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	result, err := b.meds.Register(ctx, user.ID, in)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	m := result.Medication
	text := fmt.Sprintf("✅ <b>%s</b> %s added", html.EscapeString(m.Name), html.EscapeString(m.Dosage()))
	if result.RemindersScheduled {
		text += fmt.Sprintf("\n🔔 %d reminders set", result.Notifications)
	} else {
		text += "\n🔕 No reminders set"
	}
	b.SendMessage(chatID, text)
}

// todayEntry resolves argument N against the /today list.
func (b *Bot) todayEntry(ctx context.Context, chatID int64, user *domain.User, args, usage string) (domain.DailyEntry, bool) {
	entries, err := b.meds.Today(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, err)
		return domain.DailyEntry{}, false
	}
	if len(entries) == 0 {
		b.SendMessage(chatID, "Nothing scheduled for today.")
		return domain.DailyEntry{}, false
	}
	if args == "" {
		b.SendMessage(chatID, usage)
		return domain.DailyEntry{}, false
	}
	i, err := parseIndex(args, len(entries))
	if err != nil {
		b.replyError(chatID, err)
		return domain.DailyEntry{}, false
	}

	e := entries[i]
	if !e.HasNext {
		b.SendMessage(chatID, fmt.Sprintf("✅ All doses of %s taken today.", html.EscapeString(e.Medication.Name)))
		return domain.DailyEntry{}, false
	}
	return e, true
}

func (b *Bot) cmdTake(ctx context.Context, chatID int64, user *domain.User, args string) {
	e, ok := b.todayEntry(ctx, chatID, user, args, "Use: /take N, where N is the number in /today")
	if !ok {
		return
	}
	b.SendMessageWithKeyboard(chatID, confirmPrompt(e.Medication, e.Next), confirmKeyboard(e.Medication.ID, e.Next))
}

func (b *Bot) cmdPostpone(ctx context.Context, chatID int64, user *domain.User, args string) {
	e, ok := b.todayEntry(ctx, chatID, user, args, "Use: /postpone N, where N is the number in /today")
	if !ok {
		return
	}
	kb := postponeKeyboard(e.Medication.ID, e.Next, b.doses.PostponeOptions())
	if kb == nil {
		b.SendMessage(chatID, "No later time left today.")
		return
	}
	b.SendMessageWithKeyboard(chatID, fmt.Sprintf("⏰ Postpone %s (%s) to:", html.EscapeString(e.Medication.Name), domain.FormatClock(e.Next)), *kb)
}

// listedMedication resolves argument N against the /meds list.
func (b *Bot) listedMedication(ctx context.Context, chatID int64, user *domain.User, arg string) (*domain.Medication, bool) {
	meds, err := b.meds.List(ctx, user.ID)
	if err != nil {
		b.replyError(chatID, err)
		return nil, false
	}
	if len(meds) == 0 {
		b.SendMessage(chatID, "No medications yet. Add one with /add")
		return nil, false
	}
	i, err := parseIndex(arg, len(meds))
	if err != nil {
		b.replyError(chatID, err)
		return nil, false
	}
	return meds[i], true
}

func (b *Bot) cmdNext(ctx context.Context, chatID int64, user *domain.User, args string) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		b.SendMessage(chatID, "Use: /next N DD/MM/YYYY HH:MM, where N is the number in /meds")
		return
	}

	m, ok := b.listedMedication(ctx, chatID, user, fields[0])
	if !ok {
		return
	}
	b.setCustomNext(ctx, chatID, user, m.ID, fields[1]+" "+fields[2])
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, user *domain.User, args string) {
	if args == "" {
		b.SendMessage(chatID, "Use: /delete N, where N is the number in /meds")
		return
	}
	m, ok := b.listedMedication(ctx, chatID, user, args)
	if !ok {
		return
	}

	if err := b.meds.Deactivate(ctx, user.ID, m.ID); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 %s removed", html.EscapeString(m.Name)))
}

func (b *Bot) cmdHistory(ctx context.Context, chatID int64, user *domain.User, args string) {
	days := defaultHistoryDays
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 {
			b.SendMessage(chatID, "Use: /history [days]")
			return
		}
		days = n
	}

	events, err := b.doses.RecentHistory(ctx, user.ID, days)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	if len(events) == 0 {
		b.SendMessage(chatID, fmt.Sprintf("<b>🗂 Last %d days</b>\n\nNo doses recorded.", days))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>🗂 Last %d days</b>\n\n", days))
	for _, e := range events {
		at := e.TakenAt.In(b.location)
		sb.WriteString(fmt.Sprintf("%s %s · %s\n", domain.FormatDate(at), domain.FormatClock(at), html.EscapeString(e.MedicationName)))
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdReminders(ctx context.Context, chatID int64, user *domain.User, args string) {
	switch strings.ToLower(args) {
	case "":
		policy, err := b.policies.Load(ctx, user.ID)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.SendMessage(chatID, policyText(policy)+"\n\n/reminders on|off · /advance MINUTES")
		return
	case "on", "off":
	default:
		b.SendMessage(chatID, "Use: /reminders on|off")
		return
	}

	policy, report, err := b.policies.SetEnabled(ctx, user.ID, strings.EqualFold(args, "on"))
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessage(chatID, policyText(policy)+"\n"+reportText(report))
}

func (b *Bot) cmdAdvance(ctx context.Context, chatID int64, user *domain.User, args string) {
	minutes, err := strconv.Atoi(args)
	if err != nil {
		b.SendMessage(chatID, fmt.Sprintf("Use: /advance MINUTES (0 to %d)", domain.MaxAdvanceMinutes))
		return
	}

	policy, report, err := b.policies.SetAdvance(ctx, user.ID, minutes)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.SendMessage(chatID, policyText(policy)+"\n"+reportText(report))
}

func confirmPrompt(m *domain.Medication, occurrence time.Time) string {
	return fmt.Sprintf("💊 Did you take <b>%s</b> %s of %s?",
		html.EscapeString(m.Name), html.EscapeString(m.Dosage()), domain.FormatClock(occurrence))
}

func postponedText(r service.PostponeResult) string {
	name := "Dose"
	if r.Medication != nil {
		name = html.EscapeString(r.Medication.Name)
	}
	return fmt.Sprintf("⏰ %s moved from %s to %s", name, domain.FormatClock(r.From), domain.FormatClock(r.To))
}

func policyText(p domain.ReminderPolicy) string {
	if !p.RemindersEnabled {
		return "🔕 Reminders are off"
	}
	if p.AdvanceMinutes == 0 {
		return "🔔 Reminders are on, at dose time only"
	}
	return fmt.Sprintf("🔔 Reminders are on, %d minutes ahead", p.AdvanceMinutes)
}

func reportText(r service.RescheduleReport) string {
	text := fmt.Sprintf("%d medications, %d reminders scheduled", r.Medications, r.Notifications)
	if len(r.Failed) > 0 {
		text += fmt.Sprintf(" (%d failed)", len(r.Failed))
	}
	return text
}
