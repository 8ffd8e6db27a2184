package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"TIMEZONE", "DATABASE_PATH", "TELEGRAM_TOKEN", "API_USERNAME", "API_PASSWORD",
		"ADVANCE_MINUTES_DEFAULT", "REMINDERS_DEFAULT", "CALDAV_URL"} {
		unsetEnv(t, "DOSEBOT_"+key)
		unsetEnv(t, key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/dosebot.db", cfg.DatabasePath)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone.String())
	assert.Equal(t, 15, cfg.AdvanceMinutesDefault)
	assert.True(t, cfg.RemindersDefault)
	assert.False(t, cfg.APIEnabled())
	assert.False(t, cfg.CalDAVEnabled())
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOSEBOT_TIMEZONE", "UTC")
	t.Setenv("DOSEBOT_TELEGRAM_TOKEN", "token")
	t.Setenv("DOSEBOT_ALLOWED_TELEGRAM_IDS", "10,20")
	t.Setenv("DOSEBOT_ADVANCE_MINUTES_DEFAULT", "30")
	t.Setenv("DOSEBOT_API_USERNAME", "admin")
	t.Setenv("DOSEBOT_API_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone.String())
	assert.NoError(t, cfg.RequireTelegram())
	assert.Equal(t, 30, cfg.AdvanceMinutesDefault)
	assert.True(t, cfg.APIEnabled())
	assert.True(t, cfg.IsAllowedUser(20))
	assert.False(t, cfg.IsAllowedUser(30))
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("DOSEBOT_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AdvanceOutOfRange(t *testing.T) {
	t.Setenv("DOSEBOT_TIMEZONE", "UTC")
	t.Setenv("DOSEBOT_ADVANCE_MINUTES_DEFAULT", "121")

	_, err := Load()
	assert.Error(t, err)
}

func TestIsAllowedUser_EmptyListAllowsEveryone(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.IsAllowedUser(42))
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}
