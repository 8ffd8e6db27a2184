package domain

import (
	"sort"
	"time"
)

// Instants are compared at millisecond precision, the precision the store
// keeps and notification ids encode.
func sameInstant(a, b time.Time) bool {
	return a.UnixMilli() == b.UnixMilli()
}

func indexOfInstant(list []time.Time, t time.Time) int {
	for i, o := range list {
		if sameInstant(o, t) {
			return i
		}
	}
	return -1
}

// TruncateInstant drops sub-millisecond precision.
func TruncateInstant(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).In(t.Location())
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func SameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AddOccurrence inserts t unless an identical instant is present.
func AddOccurrence(list []time.Time, t time.Time) ([]time.Time, bool) {
	if indexOfInstant(list, t) >= 0 {
		return list, false
	}
	return append(list, TruncateInstant(t)), true
}

// RemoveOccurrence removes t, keeping the order of the rest.
func RemoveOccurrence(list []time.Time, t time.Time) ([]time.Time, bool) {
	i := indexOfInstant(list, t)
	if i < 0 {
		return list, false
	}
	out := make([]time.Time, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// TodaysOccurrences keeps occurrences within now's calendar date, both
// ends inclusive, in input order.
func TodaysOccurrences(list []time.Time, now time.Time) []time.Time {
	start, end := StartOfDay(now), EndOfDay(now)
	var out []time.Time
	for _, o := range list {
		if !o.Before(start) && !o.After(end) {
			out = append(out, o)
		}
	}
	return out
}

// NextPending is the earliest of today's occurrences at or after now. Ties
// resolve to the first inserted.
func NextPending(list []time.Time, now time.Time) (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, o := range TodaysOccurrences(list, now) {
		if o.Before(now) {
			continue
		}
		if !found || o.Before(next) {
			next, found = o, true
		}
	}
	return next, found
}

// AllDosesTaken is true when the medication had occurrences today and
// none remain at or after now.
func AllDosesTaken(list []time.Time, now time.Time) bool {
	if len(TodaysOccurrences(list, now)) == 0 {
		return false
	}
	_, pending := NextPending(list, now)
	return !pending
}

// SortedOccurrences returns a sorted copy.
func SortedOccurrences(list []time.Time) []time.Time {
	out := append([]time.Time(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DailyEntry is one medication in the "today" view.
type DailyEntry struct {
	Medication *Medication
	Today      []time.Time
	Next       time.Time
	HasNext    bool
	AllTaken   bool
}

// BuildDailyView drops inactive medications and those not scheduled today,
// then orders pending ones by next occurrence ahead of completed ones.
func BuildDailyView(meds []*Medication, now time.Time) []DailyEntry {
	var entries []DailyEntry
	for _, m := range meds {
		if m == nil || !m.Active {
			continue
		}
		today := TodaysOccurrences(m.Occurrences, now)
		if len(today) == 0 {
			continue
		}
		next, ok := NextPending(m.Occurrences, now)
		entries = append(entries, DailyEntry{
			Medication: m,
			Today:      SortedOccurrences(today),
			Next:       next,
			HasNext:    ok,
			AllTaken:   !ok,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AllTaken != b.AllTaken {
			return !a.AllTaken
		}
		if a.HasNext && b.HasNext {
			return a.Next.Before(b.Next)
		}
		return false
	})
	return entries
}
