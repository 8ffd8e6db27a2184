package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/metrics"
)

const deliverTimeout = 30 * time.Second

// Sender delivers fired notifications to the user's device.
type Sender interface {
	Deliver(ctx context.Context, n domain.ScheduledNotification) error
	// CanDeliver reports whether the user can currently receive messages.
	CanDeliver(ctx context.Context, userID string) (bool, error)
}

type entry struct {
	id           cron.EntryID
	notification domain.ScheduledNotification
}

// Scheduler is the notification registry: every registered notification
// fires daily at its wall-clock time in the configured location.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]entry
	sender  Sender
}

func New(location *time.Location, log zerolog.Logger, m *metrics.Metrics) *Scheduler {
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(location)),
		log:     log.With().Str("component", "scheduler").Logger(),
		metrics: m,
		entries: make(map[string]entry),
	}
}

func (s *Scheduler) SetSender(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// ScheduleDailyRecurring registers n, replacing any notification with the
// same id.
func (s *Scheduler) ScheduleDailyRecurring(_ context.Context, n domain.ScheduledNotification) error {
	if !n.Clock().Valid() {
		return fmt.Errorf("schedule %s: invalid time %02d:%02d", n.ID(), n.Hour, n.Minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[n.ID()]; ok {
		s.cron.Remove(old.id)
	}

	spec := fmt.Sprintf("%d %d * * *", n.Minute, n.Hour)
	id, err := s.cron.AddFunc(spec, func() { s.fire(n) })
	if err != nil {
		delete(s.entries, n.ID())
		return fmt.Errorf("schedule %s: %w", n.ID(), err)
	}
	s.entries[n.ID()] = entry{id: id, notification: n}
	s.metrics.Scheduled(n.Key.Kind)
	return nil
}

// Cancel removes the notification; unknown ids are ignored.
func (s *Scheduler) Cancel(_ context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[notificationID]
	if !ok {
		return nil
	}
	s.cron.Remove(e.id)
	delete(s.entries, notificationID)
	s.metrics.Cancelled(1)
	return nil
}

// ListScheduled returns the registered notifications ordered by id.
func (s *Scheduler) ListScheduled(_ context.Context) ([]domain.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ScheduledNotification, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.notification)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// RequestPermission asks the sender whether userID can be notified. Without
// a sender notifications are kept in the registry only.
func (s *Scheduler) RequestPermission(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return true, nil
	}
	return sender.CanDeliver(ctx, userID)
}

// NextRun reports when the notification fires next.
func (s *Scheduler) NextRun(notificationID string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[notificationID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.log.Info().Int("notifications", s.count()).Msg("scheduler started")

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) fire(n domain.ScheduledNotification) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	log := s.log.With().Str("notification", n.ID()).Str("user", n.Payload.UserID).Logger()
	if sender == nil {
		log.Debug().Msg("no sender, notification dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	err := sender.Deliver(ctx, n)
	s.metrics.Delivered(err)
	if err != nil {
		log.Error().Stack().Err(err).Msg("deliver notification")
		return
	}
	log.Debug().Msg("notification delivered")
}
