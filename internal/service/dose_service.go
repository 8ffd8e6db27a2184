package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/metrics"
)

// Decision is the outcome of a dose confirmation prompt.
type Decision int

const (
	DecisionCancelled Decision = iota
	DecisionConfirmed
	// DecisionNeedsCustomInput means the dose was recorded but the next
	// instant must be supplied with SetCustomNext.
	DecisionNeedsCustomInput
)

func (d Decision) String() string {
	switch d {
	case DecisionConfirmed:
		return "confirmed"
	case DecisionNeedsCustomInput:
		return "needs_custom_input"
	default:
		return "cancelled"
	}
}

type TakeRequest struct {
	UserID       string
	MedicationID string
	Occurrence   time.Time // the pending occurrence being confirmed
	Confirmed    bool      // false when the user dismissed the prompt
}

type TakeResult struct {
	Decision    Decision
	Medication  *domain.Medication
	Event       *domain.DoseEvent
	Consumed    time.Time
	Next        time.Time
	HasNext     bool
	NextIsToday bool
	// NotifyErr is set when the dose was recorded but notifications could
	// not be re-planned.
	NotifyErr error
}

type CustomNextRequest struct {
	UserID       string
	MedicationID string
	Date         string // DD/MM/YYYY
	Time         string // HH:MM
}

type PostponeRequest struct {
	UserID       string
	MedicationID string
	Occurrence   time.Time
	Clock        string
}

type PostponeResult struct {
	Medication *domain.Medication
	From       time.Time
	To         time.Time
	NotifyErr  error
}

type DoseService struct {
	meds     MedicationStore
	events   DoseEventStore
	cache    *MedicationCache
	planner  *Planner
	location *time.Location
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// locks serializes the occurrence mutations of one medication.
	locks *keyedMutex
}

func NewDoseService(meds MedicationStore, events DoseEventStore, cache *MedicationCache, planner *Planner, loc *time.Location, log zerolog.Logger, m *metrics.Metrics) *DoseService {
	return &DoseService{
		meds:     meds,
		events:   events,
		cache:    cache,
		planner:  planner,
		location: loc,
		log:      log.With().Str("component", "dose").Logger(),
		metrics:  m,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

// Take records a confirmed dose of the pending occurrence. Fixed
// frequencies swap the occurrence for the one a full interval after it;
// custom frequencies drop it and wait for SetCustomNext. Concurrent calls
// for one medication run one at a time, so a repeated confirmation of the
// same occurrence fails with ErrIncompleteDoseData before any write.
func (s *DoseService) Take(ctx context.Context, req TakeRequest) (TakeResult, error) {
	if !req.Confirmed {
		return TakeResult{Decision: DecisionCancelled}, nil
	}

	unlock := s.locks.Lock(req.MedicationID)
	defer unlock()

	m, err := s.current(ctx, req.UserID, req.MedicationID)
	if err != nil {
		return TakeResult{}, err
	}
	if req.Occurrence.IsZero() || !m.HasOccurrence(req.Occurrence) {
		return TakeResult{}, fmt.Errorf("take %s: %w", m.Name, domain.ErrIncompleteDoseData)
	}
	if err := s.claim(ctx, m, req.UserID); err != nil {
		return TakeResult{}, err
	}

	now := s.now().In(s.location)
	event := &domain.DoseEvent{
		MedicationID:   m.ID,
		MedicationName: m.Name,
		OwnerID:        req.UserID,
		TakenAt:        now,
	}
	if err := s.events.InsertDoseEvent(ctx, event); err != nil {
		return TakeResult{}, persistenceError("record dose", err)
	}
	s.metrics.DoseConfirmed()

	consumed := domain.TruncateInstant(req.Occurrence).In(s.location)
	result := TakeResult{Event: event, Consumed: consumed}
	log := s.log.With().Str("medication", m.ID).Time("occurrence", consumed).Logger()

	if m.Frequency.IsCustom() {
		removed, err := s.meds.RemoveOccurrence(ctx, m.ID, consumed)
		if err != nil {
			s.cache.Invalidate(m.ID)
			return result, persistenceError("remove occurrence", err)
		}
		if !removed {
			s.cache.Invalidate(m.ID)
			return result, fmt.Errorf("take %s: %w", m.Name, domain.ErrIncompleteDoseData)
		}
		result.Decision = DecisionNeedsCustomInput
		log.Info().Msg("custom dose taken, waiting for next time")
	} else {
		next := consumed.Add(m.Frequency.Interval())
		if err := s.meds.ReplaceOccurrence(ctx, m.ID, consumed, next); err != nil {
			s.cache.Invalidate(m.ID)
			return result, occurrenceError("take "+m.Name, err)
		}
		result.Decision = DecisionConfirmed
		result.Next, result.HasNext = next, true
		result.NextIsToday = domain.SameDate(next, now)
		log.Info().Time("next", next).Msg("dose taken")
	}

	result.Medication, result.NotifyErr = s.replan(ctx, m.ID, req.UserID)
	return result, nil
}

// SetCustomNext adds the explicit next instant of a custom-frequency
// medication. The input is validated before anything is read or written.
func (s *DoseService) SetCustomNext(ctx context.Context, req CustomNextRequest) (TakeResult, error) {
	next, err := domain.ParseCustomInstant(req.Date, req.Time, s.location)
	if err != nil {
		return TakeResult{}, err
	}

	unlock := s.locks.Lock(req.MedicationID)
	defer unlock()

	m, err := s.current(ctx, req.UserID, req.MedicationID)
	if err != nil {
		return TakeResult{}, err
	}
	if !m.Frequency.IsCustom() {
		return TakeResult{}, domain.Validationf("%s has a fixed frequency", m.Name)
	}
	if err := s.claim(ctx, m, req.UserID); err != nil {
		return TakeResult{}, err
	}

	if _, err := s.meds.AddOccurrence(ctx, m.ID, next); err != nil {
		s.cache.Invalidate(m.ID)
		return TakeResult{}, persistenceError("add occurrence", err)
	}

	now := s.now().In(s.location)
	result := TakeResult{
		Decision:    DecisionConfirmed,
		Next:        next,
		HasNext:     true,
		NextIsToday: domain.SameDate(next, now),
	}
	result.Medication, result.NotifyErr = s.replan(ctx, m.ID, req.UserID)
	return result, nil
}

// PostponeOptions returns the candidate times for postponing right now.
func (s *DoseService) PostponeOptions() []domain.Clock {
	return domain.PostponeOptions(s.now().In(s.location))
}

// Postpone moves a pending occurrence to one of the PostponeOptions offered
// today. Any other time is a validation error.
func (s *DoseService) Postpone(ctx context.Context, req PostponeRequest) (PostponeResult, error) {
	clock, err := domain.ParseClock(req.Clock)
	if err != nil {
		return PostponeResult{}, err
	}
	now := s.now().In(s.location)
	if !offered(now, clock) {
		return PostponeResult{}, domain.Validationf("%s is not a postpone option now", clock)
	}

	unlock := s.locks.Lock(req.MedicationID)
	defer unlock()

	m, err := s.current(ctx, req.UserID, req.MedicationID)
	if err != nil {
		return PostponeResult{}, err
	}
	if req.Occurrence.IsZero() || !m.HasOccurrence(req.Occurrence) {
		return PostponeResult{}, fmt.Errorf("postpone %s: %w", m.Name, domain.ErrIncompleteDoseData)
	}
	if err := s.claim(ctx, m, req.UserID); err != nil {
		return PostponeResult{}, err
	}

	from := domain.TruncateInstant(req.Occurrence).In(s.location)
	to := clock.On(now)
	if err := s.meds.ReplaceOccurrence(ctx, m.ID, from, to); err != nil {
		s.cache.Invalidate(m.ID)
		return PostponeResult{}, occurrenceError("postpone "+m.Name, err)
	}
	s.log.Info().Str("medication", m.ID).Time("from", from).Time("to", to).Msg("dose postponed")

	result := PostponeResult{From: from, To: to}
	result.Medication, result.NotifyErr = s.replan(ctx, m.ID, req.UserID)
	return result, nil
}

// History returns the user's dose events in [from, to], newest first.
func (s *DoseService) History(ctx context.Context, userID string, from, to time.Time) ([]*domain.DoseEvent, error) {
	if to.Before(from) {
		return nil, domain.Validationf("history range ends before it starts")
	}
	events, err := s.events.ListDoseEvents(ctx, userID, from, to)
	if err != nil {
		return nil, persistenceError("list dose events", err)
	}
	return events, nil
}

// RecentHistory covers the last days calendar days including today.
func (s *DoseService) RecentHistory(ctx context.Context, userID string, days int) ([]*domain.DoseEvent, error) {
	if days < 1 {
		days = 1
	}
	now := s.now().In(s.location)
	from := domain.StartOfDay(now).AddDate(0, 0, -(days - 1))
	return s.History(ctx, userID, from, domain.EndOfDay(now))
}

// current reads the medication from the store, bypassing the cache, and
// checks the user may edit it. Callers hold the medication's lock.
func (s *DoseService) current(ctx context.Context, userID, medicationID string) (*domain.Medication, error) {
	m, err := s.meds.GetMedication(ctx, medicationID)
	if err != nil {
		return nil, persistenceError("get medication", err)
	}
	if m == nil {
		return nil, fmt.Errorf("medication %s: %w", medicationID, domain.ErrNotFound)
	}
	if !m.CanEdit(userID) {
		return nil, fmt.Errorf("medication %s: %w", medicationID, domain.ErrPermissionDenied)
	}
	return m, nil
}

// claim gives a legacy medication to its first editor.
func (s *DoseService) claim(ctx context.Context, m *domain.Medication, userID string) error {
	if !m.IsLegacy() {
		return nil
	}
	if _, err := s.meds.ClaimMedication(ctx, m.ID, userID); err != nil {
		return persistenceError("claim medication", err)
	}
	s.cache.Invalidate(m.ID)
	m.OwnerID = userID
	s.log.Info().Str("medication", m.ID).Str("user", userID).Msg("legacy medication claimed")
	return nil
}

// replan refreshes the cached medication and re-derives its notifications.
func (s *DoseService) replan(ctx context.Context, medicationID, userID string) (*domain.Medication, error) {
	s.cache.Invalidate(medicationID)
	m, err := s.cache.Get(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("medication %s: %w", medicationID, domain.ErrNotFound)
	}

	if _, err := s.planner.PlanFor(ctx, m, userID); err != nil {
		s.log.Error().Stack().Err(err).Str("medication", medicationID).Msg("replan notifications")
		return m, err
	}
	return m, nil
}

// offered reports whether c is a postpone option now or was one a minute
// ago, when the choices were likely rendered.
func offered(now time.Time, c domain.Clock) bool {
	for _, at := range []time.Time{now, now.Add(-time.Minute)} {
		for _, o := range domain.PostponeOptions(at) {
			if o == c {
				return true
			}
		}
	}
	return false
}

// occurrenceError reports a store-level missing occurrence as stale dose
// data and anything else as a persistence failure.
func occurrenceError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrIncompleteDoseData)
	}
	return persistenceError(op, err)
}
