package domain

import "time"

const (
	PostponeStepMinutes = 30
	PostponeSlots       = 12
)

// PostponeOptions lists the clock times a pending dose can be moved to:
// every half hour after now, up to six hours, without leaving now's date.
func PostponeOptions(now time.Time) []Clock {
	var out []Clock
	for i := 1; i <= PostponeSlots; i++ {
		t := now.Add(time.Duration(i*PostponeStepMinutes) * time.Minute)
		if !SameDate(t, now) {
			break
		}
		out = append(out, ClockOf(t))
	}
	return out
}
