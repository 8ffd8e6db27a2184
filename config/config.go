package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from DOSEBOT_* environment variables.
type Config struct {
	TelegramToken      string  `envconfig:"TELEGRAM_TOKEN"`
	AllowedTelegramIDs []int64 `envconfig:"ALLOWED_TELEGRAM_IDS"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"./data/dosebot.db"`
	TimezoneName string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	APIUsername string `envconfig:"API_USERNAME"`
	APIPassword string `envconfig:"API_PASSWORD"`

	RemindersDefault      bool `envconfig:"REMINDERS_DEFAULT" default:"true"`
	AdvanceMinutesDefault int  `envconfig:"ADVANCE_MINUTES_DEFAULT" default:"15"`

	CalDAVURL      string `envconfig:"CALDAV_URL"`
	CalDAVUsername string `envconfig:"CALDAV_USERNAME"`
	CalDAVPassword string `envconfig:"CALDAV_PASSWORD"`
	CalDAVCalendar string `envconfig:"CALDAV_CALENDAR"`

	Timezone *time.Location `ignored:"true"`
}

// Load parses the environment. The telegram token is only required by
// commands that start the bot, see RequireTelegram.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("DOSEBOT", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	tz, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	if cfg.AdvanceMinutesDefault < 0 || cfg.AdvanceMinutesDefault > 120 {
		return nil, fmt.Errorf("ADVANCE_MINUTES_DEFAULT must be within 0..120, got %d", cfg.AdvanceMinutesDefault)
	}

	cfg.CalDAVCalendar = strings.TrimSpace(cfg.CalDAVCalendar)
	return &cfg, nil
}

func (c *Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("DOSEBOT_TELEGRAM_TOKEN is required")
	}
	return nil
}

func (c *Config) IsAllowedUser(telegramID int64) bool {
	if len(c.AllowedTelegramIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedTelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

// CalDAVEnabled does not require a calendar path; the publisher discovers
// the first calendar of the principal when it is empty.
func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != ""
}
