package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type NotificationKind string

const (
	KindOnTime NotificationKind = "ontime"
	KindSoon   NotificationKind = "soon"
	KindLate   NotificationKind = "late"
)

func (k NotificationKind) Valid() bool {
	return k == KindOnTime || k == KindSoon || k == KindLate
}

// NotificationKey identifies one notification of an occurrence. Its string
// form is "{medicationID}-{occurrenceEpochMillis}-{kind}".
type NotificationKey struct {
	MedicationID    string
	OccurrenceEpoch int64
	Kind            NotificationKind
}

func KeyFor(medicationID string, occurrence time.Time, kind NotificationKind) NotificationKey {
	return NotificationKey{
		MedicationID:    medicationID,
		OccurrenceEpoch: occurrence.UnixMilli(),
		Kind:            kind,
	}
}

func (k NotificationKey) String() string {
	return fmt.Sprintf("%s-%d-%s", k.MedicationID, k.OccurrenceEpoch, k.Kind)
}

// ParseNotificationKey splits from the right, so medication ids may
// themselves contain dashes.
func ParseNotificationKey(id string) (NotificationKey, error) {
	kindAt := strings.LastIndex(id, "-")
	if kindAt <= 0 {
		return NotificationKey{}, fmt.Errorf("malformed notification id %q", id)
	}
	epochAt := strings.LastIndex(id[:kindAt], "-")
	if epochAt <= 0 {
		return NotificationKey{}, fmt.Errorf("malformed notification id %q", id)
	}

	kind := NotificationKind(id[kindAt+1:])
	if !kind.Valid() {
		return NotificationKey{}, fmt.Errorf("unknown notification kind in %q", id)
	}
	epoch, err := strconv.ParseInt(id[epochAt+1:kindAt], 10, 64)
	if err != nil {
		return NotificationKey{}, fmt.Errorf("malformed occurrence in %q: %w", id, err)
	}
	return NotificationKey{MedicationID: id[:epochAt], OccurrenceEpoch: epoch, Kind: kind}, nil
}

type NotificationPayload struct {
	Title        string
	Body         string
	MedicationID string
	UserID       string
	Occurrence   time.Time
}

// ScheduledNotification is a daily recurring trigger at Hour:Minute.
type ScheduledNotification struct {
	Key     NotificationKey
	Hour    int
	Minute  int
	Payload NotificationPayload
}

func (n ScheduledNotification) ID() string {
	return n.Key.String()
}

func (n ScheduledNotification) Clock() Clock {
	return Clock{Hour: n.Hour, Minute: n.Minute}
}

// DeriveNotifications expands every occurrence into its on-time,
// pre-reminder and late-check triggers. Disabled reminders and inactive
// medications yield none; advanceMinutes of 0 suppresses the pre-reminder.
func DeriveNotifications(m *Medication, policy ReminderPolicy) []ScheduledNotification {
	if m == nil || !m.Active || !policy.RemindersEnabled {
		return nil
	}

	var out []ScheduledNotification
	for _, o := range SortedOccurrences(m.Occurrences) {
		at := ClockOf(o)

		out = append(out, ScheduledNotification{
			Key:    KeyFor(m.ID, o, KindOnTime),
			Hour:   at.Hour,
			Minute: at.Minute,
			Payload: payloadFor(m, o,
				"💊 Time for your medicine!",
				fmt.Sprintf("Don't forget to take %s of %s.", m.Dosage(), m.Name)),
		})

		if policy.AdvanceMinutes > 0 {
			soon := at.Add(-policy.AdvanceMinutes)
			out = append(out, ScheduledNotification{
				Key:    KeyFor(m.ID, o, KindSoon),
				Hour:   soon.Hour,
				Minute: soon.Minute,
				Payload: payloadFor(m, o,
					"⏰ Medicine reminder",
					fmt.Sprintf("%s is due in %d minutes.", m.Name, policy.AdvanceMinutes)),
			})
		}

		late := at.Add(LateCheckMinutes)
		out = append(out, ScheduledNotification{
			Key:    KeyFor(m.ID, o, KindLate),
			Hour:   late.Hour,
			Minute: late.Minute,
			Payload: payloadFor(m, o,
				"⚠️ Medicine check",
				fmt.Sprintf("Did you remember to take %s at %s?", m.Name, at)),
		})
	}
	return out
}

func payloadFor(m *Medication, occurrence time.Time, title, body string) NotificationPayload {
	return NotificationPayload{
		Title:        title,
		Body:         body,
		MedicationID: m.ID,
		UserID:       m.OwnerID,
		Occurrence:   occurrence,
	}
}
