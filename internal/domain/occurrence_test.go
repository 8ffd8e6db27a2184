package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var brt = time.FixedZone("BRT", -3*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, brt)
}

func TestTodaysOccurrences_BoundsInclusive(t *testing.T) {
	now := at(22, 12, 0)
	start := StartOfDay(now)
	end := EndOfDay(now)

	list := []time.Time{
		start.Add(-time.Millisecond),
		start,
		at(22, 8, 0),
		end,
		end.Add(time.Millisecond),
		at(23, 8, 0),
		at(21, 20, 0),
	}

	got := TodaysOccurrences(list, now)
	require.Len(t, got, 3)
	for _, o := range got {
		assert.False(t, o.Before(start), "occurrence %v before start of day", o)
		assert.False(t, o.After(end), "occurrence %v after end of day", o)
	}
}

func TestNextPending(t *testing.T) {
	list := []time.Time{at(22, 20, 0), at(22, 8, 0)}

	next, ok := NextPending(list, at(22, 9, 0))
	require.True(t, ok)
	assert.True(t, next.Equal(at(22, 20, 0)))
	assert.False(t, AllDosesTaken(list, at(22, 9, 0)))

	_, ok = NextPending(list, at(22, 21, 0))
	assert.False(t, ok)
	assert.True(t, AllDosesTaken(list, at(22, 21, 0)))
}

func TestNextPending_IncludesNow(t *testing.T) {
	list := []time.Time{at(22, 8, 0)}

	next, ok := NextPending(list, at(22, 8, 0))
	require.True(t, ok)
	assert.True(t, next.Equal(at(22, 8, 0)))
}

func TestNextPending_IgnoresOtherDays(t *testing.T) {
	list := []time.Time{at(23, 6, 0), at(21, 23, 0)}

	_, ok := NextPending(list, at(22, 1, 0))
	assert.False(t, ok)
}

func TestAllDosesTaken_FalseWithoutOccurrencesToday(t *testing.T) {
	assert.False(t, AllDosesTaken(nil, at(22, 12, 0)))
	assert.False(t, AllDosesTaken([]time.Time{at(23, 8, 0)}, at(22, 12, 0)))
}

func TestAddOccurrence_Dedups(t *testing.T) {
	list, added := AddOccurrence(nil, at(22, 8, 0))
	require.True(t, added)

	list, added = AddOccurrence(list, at(22, 8, 0).In(time.UTC))
	assert.False(t, added)
	assert.Len(t, list, 1)
}

func TestRemoveOccurrence(t *testing.T) {
	list := []time.Time{at(22, 8, 0), at(22, 14, 0), at(22, 20, 0)}

	out, removed := RemoveOccurrence(list, at(22, 14, 0))
	require.True(t, removed)
	assert.Equal(t, []time.Time{at(22, 8, 0), at(22, 20, 0)}, out)
	assert.Len(t, list, 3, "input must not be modified")

	_, removed = RemoveOccurrence(out, at(22, 14, 0))
	assert.False(t, removed)
}

func TestBuildDailyView_Ordering(t *testing.T) {
	now := at(22, 12, 0)
	meds := []*Medication{
		{ID: "done", Active: true, Occurrences: []time.Time{at(22, 8, 0)}},
		{ID: "late", Active: true, Occurrences: []time.Time{at(22, 20, 0)}},
		{ID: "soon", Active: true, Occurrences: []time.Time{at(22, 8, 0), at(22, 14, 0)}},
		{ID: "tomorrow", Active: true, Occurrences: []time.Time{at(23, 8, 0)}},
		{ID: "inactive", Active: false, Occurrences: []time.Time{at(22, 13, 0)}},
	}

	view := BuildDailyView(meds, now)
	require.Len(t, view, 3)
	assert.Equal(t, "soon", view[0].Medication.ID)
	assert.Equal(t, "late", view[1].Medication.ID)
	assert.Equal(t, "done", view[2].Medication.ID)

	assert.True(t, view[2].AllTaken)
	assert.False(t, view[2].HasNext)
	assert.True(t, view[0].Next.Equal(at(22, 14, 0)))
	assert.Len(t, view[0].Today, 2)
}

func TestSameDate(t *testing.T) {
	assert.True(t, SameDate(at(22, 0, 0), at(22, 23, 59)))
	assert.False(t, SameDate(at(22, 23, 59), at(23, 0, 0)))
}
