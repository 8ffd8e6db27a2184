package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalHours(t *testing.T) {
	cases := map[FrequencyKind]int{
		FrequencyEvery6h:  6,
		FrequencyEvery8h:  8,
		FrequencyEvery12h: 12,
		FrequencyEvery24h: 24,
		FrequencyCustom:   0,
		"every_3h":        0,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.IntervalHours(), kind)
	}
	assert.True(t, FrequencyKind("bogus").IsCustom())
	assert.Equal(t, FrequencyCustom, FrequencyKind("bogus").Normalize())
	assert.Equal(t, 8*time.Hour, FrequencyEvery8h.Interval())
}

func TestParseFrequencyKind(t *testing.T) {
	cases := map[string]FrequencyKind{
		"every_6h": FrequencyEvery6h,
		"8h":       FrequencyEvery8h,
		" 12H ":    FrequencyEvery12h,
		"daily":    FrequencyEvery24h,
		"0":        FrequencyEvery6h,
		"1":        FrequencyEvery8h,
		"2":        FrequencyEvery12h,
		"3":        FrequencyEvery24h,
		"4":        FrequencyCustom,
		"9":        FrequencyCustom,
		"weekly":   FrequencyCustom,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseFrequencyKind(in), in)
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"8":     {8, 0},
		"08":    {8, 0},
		"08:30": {8, 30},
		"0830":  {8, 30},
		"830":   {8, 30},
		"23:59": {23, 59},
		"0":     {0, 0},
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "24", "12:60", "25:00", "123456", "ab"} {
		_, err := ParseClock(in)
		assert.True(t, errors.Is(err, ErrValidation), in)
	}
}

func TestParseCustomInstant(t *testing.T) {
	got, err := ParseCustomInstant("22/06/2025", "14:30", brt)
	require.NoError(t, err)
	assert.True(t, got.Equal(at(22, 14, 30)))

	bad := [][2]string{
		{"2025-06-22", "14:30"},
		{"22/06/2025", "2:30"},
		{"31/02/2025", "10:00"},
		{"22/06/2025", "24:00"},
		{"", "10:00"},
	}
	for _, in := range bad {
		_, err := ParseCustomInstant(in[0], in[1], brt)
		assert.True(t, errors.Is(err, ErrValidation), in)
	}
}

func TestClockAdd(t *testing.T) {
	assert.Equal(t, Clock{23, 50}, Clock{0, 5}.Add(-15))
	assert.Equal(t, Clock{0, 10}, Clock{23, 40}.Add(30))
	assert.Equal(t, Clock{12, 0}, Clock{12, 0}.Add(24*60))
}

func TestReminderPolicyValidate(t *testing.T) {
	assert.NoError(t, ReminderPolicy{AdvanceMinutes: 0}.Validate())
	assert.NoError(t, ReminderPolicy{AdvanceMinutes: 120}.Validate())

	err := ReminderPolicy{AdvanceMinutes: 121}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidAdvanceTime))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Error(t, ReminderPolicy{AdvanceMinutes: -1}.Validate())
}

func TestMedicationInputValidate(t *testing.T) {
	in := MedicationInput{Name: "Dipirona", DoseAmount: 1, DoseUnit: "g", Frequency: FrequencyEvery6h, Times: []string{"8", "14:00"}}
	clocks, err := in.Validate()
	require.NoError(t, err)
	assert.Equal(t, []Clock{{8, 0}, {14, 0}}, clocks)

	in.DoseAmount = 0
	_, err = in.Validate()
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestMedicationDosageAndEdit(t *testing.T) {
	m := &Medication{DoseAmount: 2.5, DoseUnit: "ml"}
	assert.Equal(t, "2.5 ml", m.Dosage())
	assert.True(t, m.CanEdit("anyone"))

	m.OwnerID = "u1"
	assert.True(t, m.CanEdit("u1"))
	assert.False(t, m.CanEdit("u2"))
	assert.Equal(t, "Ibuprofen", NormalizeName(" ibuprofen"))
}
