package domain

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func medicationAt(occurrences ...time.Time) *Medication {
	return &Medication{
		ID:          "3f1c-med",
		OwnerID:     "user-1",
		Name:        "Amoxicillin",
		DoseAmount:  500,
		DoseUnit:    "mg",
		Frequency:   FrequencyEvery8h,
		Occurrences: occurrences,
		Active:      true,
	}
}

func byKind(ns []ScheduledNotification) map[NotificationKind]ScheduledNotification {
	out := map[NotificationKind]ScheduledNotification{}
	for _, n := range ns {
		out[n.Key.Kind] = n
	}
	return out
}

func TestDeriveNotifications_Trio(t *testing.T) {
	o := at(22, 14, 30)
	ns := DeriveNotifications(medicationAt(o), ReminderPolicy{RemindersEnabled: true, AdvanceMinutes: 15})
	require.Len(t, ns, 3)

	kinds := byKind(ns)
	assert.Equal(t, Clock{14, 30}, kinds[KindOnTime].Clock())
	assert.Equal(t, Clock{14, 15}, kinds[KindSoon].Clock())
	assert.Equal(t, Clock{15, 0}, kinds[KindLate].Clock())

	assert.Equal(t, "3f1c-med-"+formatMillis(o)+"-ontime", kinds[KindOnTime].ID())
	assert.Equal(t, "user-1", kinds[KindLate].Payload.UserID)
	assert.Equal(t, "3f1c-med", kinds[KindSoon].Payload.MedicationID)
	assert.Contains(t, kinds[KindLate].Payload.Body, "14:30")
}

func TestDeriveNotifications_ZeroAdvanceSuppressesPreReminder(t *testing.T) {
	ns := DeriveNotifications(medicationAt(at(22, 14, 30)), ReminderPolicy{RemindersEnabled: true, AdvanceMinutes: 0})
	require.Len(t, ns, 2)

	kinds := byKind(ns)
	assert.Contains(t, kinds, KindOnTime)
	assert.Contains(t, kinds, KindLate)
	assert.NotContains(t, kinds, KindSoon)
}

func TestDeriveNotifications_WrapsAroundMidnight(t *testing.T) {
	ns := DeriveNotifications(medicationAt(at(22, 0, 5), at(22, 23, 45)), ReminderPolicy{RemindersEnabled: true, AdvanceMinutes: 10})
	require.Len(t, ns, 6)

	first := byKind(ns[:3])
	assert.Equal(t, Clock{23, 55}, first[KindSoon].Clock())

	second := byKind(ns[3:])
	assert.Equal(t, Clock{0, 15}, second[KindLate].Clock())
}

func TestDeriveNotifications_DisabledOrInactive(t *testing.T) {
	m := medicationAt(at(22, 8, 0))
	assert.Empty(t, DeriveNotifications(m, ReminderPolicy{RemindersEnabled: false, AdvanceMinutes: 15}))

	m.Active = false
	assert.Empty(t, DeriveNotifications(m, ReminderPolicy{RemindersEnabled: true, AdvanceMinutes: 15}))
}

func TestNotificationKey_RoundTrip(t *testing.T) {
	key := KeyFor("0b6e9a3c-7f1d-4d2a-9a47-2f0c1f4b9d11", at(22, 8, 0), KindSoon)

	parsed, err := ParseNotificationKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseNotificationKey_Malformed(t *testing.T) {
	for _, id := range []string{"", "med", "med-ontime", "med-abc-ontime", "med-123-early", "-123-late"} {
		_, err := ParseNotificationKey(id)
		assert.Error(t, err, id)
	}
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
