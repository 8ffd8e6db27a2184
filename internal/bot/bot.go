// Package bot is the Telegram transport: it maps chat users to domain
// users, serves the dose commands and delivers fired notifications.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/config"
	"github.com/tazhate/dosebot/internal/service"
)

// messenger is the part of tgbotapi.BotAPI the handlers use.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Deps struct {
	Users       *service.UserService
	Medications *service.MedicationService
	Doses       *service.DoseService
	Policies    *service.PolicyService
	Location    *time.Location
	Logger      zerolog.Logger
}

type Bot struct {
	api      messenger
	poller   *tgbotapi.BotAPI
	cfg      *config.Config
	users    *service.UserService
	meds     *service.MedicationService
	doses    *service.DoseService
	policies *service.PolicyService
	location *time.Location
	log      zerolog.Logger

	mu sync.Mutex
	// awaiting maps a chat to the custom medication whose next dose time
	// the chat was asked for.
	awaiting map[int64]string
}

func New(cfg *config.Config, d Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(api, cfg, d)
	b.poller = api
	b.log.Info().Str("username", api.Self.UserName).Msg("authorized")

	b.setCommands()
	return b, nil
}

func newBot(api messenger, cfg *config.Config, d Deps) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		users:    d.Users,
		meds:     d.Medications,
		doses:    d.Doses,
		policies: d.Policies,
		location: d.Location,
		log:      d.Logger.With().Str("component", "bot").Logger(),
		awaiting: make(map[int64]string),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "today", Description: "💊 Doses for today"},
		{Command: "meds", Description: "📋 My medications"},
		{Command: "add", Description: "➕ Add a medication"},
		{Command: "history", Description: "🗂 Recent doses"},
		{Command: "reminders", Description: "🔔 Reminder settings"},
		{Command: "help", Description: "❓ Commands"},
	}

	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn().Err(err).Msg("set commands")
	}
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return fmt.Errorf("bot has no telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.poller.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.poller.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn().Err(err).Int64("chat", chatID).Msg("edit message")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}
}

func (b *Bot) expectCustomNext(chatID int64, medicationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.awaiting[chatID] = medicationID
}

func (b *Bot) awaitingFor(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.awaiting[chatID]
	return id, ok
}

func (b *Bot) clearAwaiting(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.awaiting, chatID)
}
