package calendar

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/tazhate/dosebot/internal/domain"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func testMeds(loc *time.Location) []*domain.Medication {
	day := func(d, h int) time.Time { return time.Date(2025, time.June, d, h, 0, 0, 0, loc) }
	return []*domain.Medication{
		{
			ID: "med-1", Name: "Amoxicillin", DoseAmount: 500, DoseUnit: "mg",
			Frequency: domain.FrequencyEvery12h, Active: true,
			// 08:00 on two days is a single slot
			Occurrences: []time.Time{day(23, 8), day(22, 20), day(22, 8)},
		},
		{
			ID: "med-2", Name: "Old", DoseAmount: 1, DoseUnit: "pill",
			Frequency: domain.FrequencyEvery24h, Active: false,
			Occurrences: []time.Time{day(22, 9)},
		},
	}
}

func TestRender_SlotsWithAlarm(t *testing.T) {
	loc := saoPaulo(t)
	stamp := time.Date(2025, time.June, 22, 12, 0, 0, 0, time.UTC)

	cal := Render(testMeds(loc), domain.ReminderPolicy{RemindersEnabled: true, AdvanceMinutes: 15}, loc, stamp)
	data, err := Encode(cal)
	require.NoError(t, err)

	decoded, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)

	events := decoded.Events()
	require.Len(t, events, 2)

	var uids []string
	for _, ev := range events {
		uid, err := ev.Props.Text(ical.PropUID)
		require.NoError(t, err)
		uids = append(uids, uid)

		rule, err := ev.Props.RecurrenceRule()
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, rrule.DAILY, rule.Freq)

		summary, err := ev.Props.Text(ical.PropSummary)
		require.NoError(t, err)
		assert.Contains(t, summary, "Amoxicillin")

		require.Len(t, ev.Children, 1)
		alarm := ev.Children[0]
		assert.Equal(t, ical.CompAlarm, alarm.Name)
		assert.Equal(t, "-PT15M", alarm.Props.Get(ical.PropTrigger).Value)
	}

	sort.Strings(uids)
	morning := time.Date(2025, time.June, 22, 8, 0, 0, 0, loc)
	evening := time.Date(2025, time.June, 22, 20, 0, 0, 0, loc)
	assert.Equal(t, []string{
		domain.KeyFor("med-1", morning, domain.KindOnTime).String(),
		domain.KeyFor("med-1", evening, domain.KindOnTime).String(),
	}, uids)

	start, err := events[0].DateTimeStart(loc)
	require.NoError(t, err)
	assert.Equal(t, 0, start.Minute())
}

func TestRender_NoAlarmWhenDisabled(t *testing.T) {
	loc := saoPaulo(t)

	for _, policy := range []domain.ReminderPolicy{
		{RemindersEnabled: false, AdvanceMinutes: 15},
		{RemindersEnabled: true, AdvanceMinutes: 0},
	} {
		cal := Render(testMeds(loc), policy, loc, time.Now())
		for _, ev := range cal.Events() {
			assert.Empty(t, ev.Children)
		}
	}
}

func TestSplit(t *testing.T) {
	loc := saoPaulo(t)
	cal := Render(testMeds(loc), domain.ReminderPolicy{}, loc, time.Now())

	parts := Split(cal)
	require.Len(t, parts, 2)
	for uid, single := range parts {
		events := single.Events()
		require.Len(t, events, 1)
		got, _ := events[0].Props.Text(ical.PropUID)
		assert.Equal(t, uid, got)
	}
}

type recorded struct {
	method, path, user, body string
}

func TestPublisher_PutAndRemove(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, _, _ := r.BasicAuth()
		mu.Lock()
		reqs = append(reqs, recorded{r.Method, r.URL.Path, user, string(body)})
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	p, err := NewPublisher(srv.URL, "ana", "secret", "/calendars/ana/doses")
	require.NoError(t, err)

	loc := saoPaulo(t)
	written, err := p.Publish(context.Background(), Render(testMeds(loc), domain.ReminderPolicy{}, loc, time.Now()))
	require.NoError(t, err)
	assert.Len(t, written, 2)

	require.NoError(t, p.Remove(context.Background(), written[0]))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reqs, 3)
	for _, r := range reqs[:2] {
		assert.Equal(t, http.MethodPut, r.method)
		assert.Equal(t, "ana", r.user)
		assert.True(t, strings.HasPrefix(r.path, "/calendars/ana/doses/med-1-"))
		assert.Equal(t, 1, strings.Count(r.body, "BEGIN:VEVENT"))
	}
	assert.Equal(t, http.MethodDelete, reqs[2].method)
	assert.Equal(t, "/calendars/ana/doses/"+written[0]+".ics", reqs[2].path)
}

func TestNewPublisher_RequiresURL(t *testing.T) {
	_, err := NewPublisher("", "u", "p", "")
	assert.Error(t, err)
}
