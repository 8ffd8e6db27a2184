package service

import (
	"context"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/calendar"
	"github.com/tazhate/dosebot/internal/domain"
)

// SlotPublisher writes calendar slots to a remote calendar.
type SlotPublisher interface {
	Publish(ctx context.Context, cal *ical.Calendar) ([]string, error)
	Remove(ctx context.Context, uid string) error
}

// CalendarService renders a user's dose slots as iCalendar and keeps an
// optional CalDAV calendar in sync with them.
type CalendarService struct {
	meds      MedicationStore
	policies  PolicyLoader
	publisher SlotPublisher
	location  *time.Location
	log       zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	published map[string]map[string]bool // user id -> slot uids
}

// NewCalendarService accepts a nil publisher when CalDAV is not configured.
func NewCalendarService(meds MedicationStore, policies PolicyLoader, publisher SlotPublisher, loc *time.Location, log zerolog.Logger) *CalendarService {
	return &CalendarService{
		meds:      meds,
		policies:  policies,
		publisher: publisher,
		location:  loc,
		log:       log.With().Str("component", "calendar").Logger(),
		now:       time.Now,
		published: make(map[string]map[string]bool),
	}
}

func (s *CalendarService) IsConfigured() bool {
	return s.publisher != nil
}

// Calendar renders the user's active medications.
func (s *CalendarService) Calendar(ctx context.Context, userID string) (*ical.Calendar, error) {
	meds, err := s.meds.ListMedications(ctx, domain.MedicationFilter{OwnerID: userID, ActiveOnly: true})
	if err != nil {
		return nil, persistenceError("list medications", err)
	}
	policy, err := s.policies.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return calendar.Render(meds, policy, s.location, s.now()), nil
}

// Feed is the encoded calendar served over HTTP.
func (s *CalendarService) Feed(ctx context.Context, userID string) ([]byte, error) {
	cal, err := s.Calendar(ctx, userID)
	if err != nil {
		return nil, err
	}
	return calendar.Encode(cal)
}

// Publish pushes the user's slots and removes the ones published before
// that no longer exist.
func (s *CalendarService) Publish(ctx context.Context, userID string) error {
	if s.publisher == nil {
		return nil
	}

	cal, err := s.Calendar(ctx, userID)
	if err != nil {
		return err
	}
	written, err := s.publisher.Publish(ctx, cal)
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(written))
	for _, uid := range written {
		current[uid] = true
	}

	s.mu.Lock()
	previous := s.published[userID]
	s.published[userID] = current
	s.mu.Unlock()

	for uid := range previous {
		if current[uid] {
			continue
		}
		if err := s.publisher.Remove(ctx, uid); err != nil {
			s.log.Warn().Err(err).Str("uid", uid).Msg("remove stale slot")
		}
	}

	s.log.Debug().Str("user", userID).Int("slots", len(written)).Msg("calendar published")
	return nil
}

// PublishAfterReschedule is the planner hook; failures are only logged.
func (s *CalendarService) PublishAfterReschedule(ctx context.Context, userID string) {
	if err := s.Publish(ctx, userID); err != nil {
		s.log.Error().Stack().Err(err).Str("user", userID).Msg("publish calendar")
	}
}
