package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/dosebot/internal/domain"
)

func TestCalendarFeed(t *testing.T) {
	h := newHarness(at(22, 7, 0))
	h.addMedication("u1", domain.FrequencyEvery12h, at(22, 8, 0), at(22, 20, 0))
	h.addMedication("u2", domain.FrequencyEvery12h, at(22, 9, 0))

	svc := NewCalendarService(h.store, h.policies, nil, time.UTC, zerolog.Nop())
	assert.False(t, svc.IsConfigured())

	data, err := svc.Feed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "BEGIN:VEVENT"))
	assert.Contains(t, string(data), "RRULE:FREQ=DAILY")

	assert.NoError(t, svc.Publish(context.Background(), "u1"), "publishing without CalDAV is a no-op")
}

func TestCalendarPublish_RemovesStaleSlots(t *testing.T) {
	ctx := context.Background()
	h := newHarness(at(22, 7, 0))
	m := h.addMedication("u1", domain.FrequencyEvery12h, at(22, 8, 0), at(22, 20, 0))

	pub := &fakePublisher{}
	svc := NewCalendarService(h.store, h.policies, pub, time.UTC, zerolog.Nop())
	h.planner.SetAfterReschedule(svc.PublishAfterReschedule)

	_, err := h.planner.RescheduleUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pub.current, 2)

	h.store.meds[m.ID].Occurrences = []time.Time{at(22, 8, 0)}
	_, err = h.planner.RescheduleUser(ctx, "u1")
	require.NoError(t, err)

	assert.Len(t, pub.current, 1)
	require.Len(t, pub.removed, 1)
	assert.Equal(t, domain.KeyFor(m.ID, at(22, 20, 0), domain.KindOnTime).String(), pub.removed[0])
}
