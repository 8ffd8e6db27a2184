package calendar

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/tazhate/dosebot/internal/domain"
)

const (
	productID     = "-//DoseBot//Dose Schedule//EN"
	eventDuration = 15 * time.Minute
)

// Render builds the iCalendar view of the medications' daily dose slots.
// Every distinct time of day of an active medication becomes one daily
// recurring event, represented by its earliest occurrence.
func Render(meds []*domain.Medication, policy domain.ReminderPolicy, loc *time.Location, stamp time.Time) *ical.Calendar {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, m := range meds {
		if m == nil || !m.Active {
			continue
		}
		for _, o := range slots(m.Occurrences) {
			cal.Children = append(cal.Children, slotEvent(m, o.In(loc), policy, stamp).Component)
		}
	}
	return cal
}

func slots(occurrences []time.Time) []time.Time {
	seen := make(map[domain.Clock]bool)
	var out []time.Time
	for _, o := range domain.SortedOccurrences(occurrences) {
		c := domain.ClockOf(o)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, o)
	}
	return out
}

func slotEvent(m *domain.Medication, start time.Time, policy domain.ReminderPolicy, stamp time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, domain.KeyFor(m.ID, start, domain.KindOnTime).String())
	event.Props.SetText(ical.PropSummary, "💊 "+m.Name)
	event.Props.SetText(ical.PropDescription, describe(m))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(eventDuration))
	event.Props.SetRecurrenceRule(&rrule.ROption{Freq: rrule.DAILY})

	if policy.RemindersEnabled && policy.AdvanceMinutes > 0 {
		event.Children = append(event.Children, alarm(m, policy.AdvanceMinutes))
	}
	return event
}

func describe(m *domain.Medication) string {
	text := fmt.Sprintf("%s (%s)", m.Dosage(), m.Frequency.Label())
	if m.Instructions != "" {
		text += "\n" + m.Instructions
	}
	return text
}

func alarm(m *domain.Medication, advanceMinutes int) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	a.Props.SetText(ical.PropAction, "DISPLAY")
	a.Props.SetText(ical.PropDescription, fmt.Sprintf("%s is due in %d minutes", m.Name, advanceMinutes))

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", advanceMinutes)
	a.Props.Set(trigger)
	return a
}

// Encode serializes cal as text/calendar.
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// Split returns one single-event calendar per VEVENT of cal, keyed by UID.
func Split(cal *ical.Calendar) map[string]*ical.Calendar {
	out := make(map[string]*ical.Calendar)
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		uid := child.Props.Get(ical.PropUID)
		if uid == nil {
			continue
		}

		single := ical.NewCalendar()
		single.Props.SetText(ical.PropVersion, "2.0")
		single.Props.SetText(ical.PropProductID, productID)
		single.Children = append(single.Children, child)
		out[uid.Value] = single
	}
	return out
}
