package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/domain"
)

// Rescheduler re-plans every notification of a user.
type Rescheduler interface {
	RescheduleUser(ctx context.Context, userID string) (RescheduleReport, error)
}

type PolicyService struct {
	store       PolicyStore
	defaults    domain.ReminderPolicy
	rescheduler Rescheduler
	log         zerolog.Logger
}

func NewPolicyService(store PolicyStore, remindersDefault bool, advanceDefault int, log zerolog.Logger) *PolicyService {
	return &PolicyService{
		store:    store,
		defaults: domain.DefaultReminderPolicy("", remindersDefault, advanceDefault),
		log:      log.With().Str("component", "policy").Logger(),
	}
}

// SetRescheduler wires the planner; it is set after construction because
// the planner itself loads policies from this service.
func (s *PolicyService) SetRescheduler(r Rescheduler) {
	s.rescheduler = r
}

// Load returns the stored policy or the default one.
func (s *PolicyService) Load(ctx context.Context, userID string) (domain.ReminderPolicy, error) {
	p, err := s.store.GetReminderPolicy(ctx, userID)
	if err != nil {
		return domain.ReminderPolicy{}, persistenceError("load reminder policy", err)
	}
	if p == nil {
		def := s.defaults
		def.UserID = userID
		return def, nil
	}
	return *p, nil
}

// Save validates and persists the policy, then reschedules all of the
// user's active medications. A failed reschedule is reported alongside the
// saved policy.
func (s *PolicyService) Save(ctx context.Context, userID string, enabled bool, advanceMinutes int) (domain.ReminderPolicy, RescheduleReport, error) {
	p := domain.ReminderPolicy{
		UserID:           userID,
		RemindersEnabled: enabled,
		AdvanceMinutes:   advanceMinutes,
	}
	if err := p.Validate(); err != nil {
		return domain.ReminderPolicy{}, RescheduleReport{}, err
	}

	if err := s.store.SaveReminderPolicy(ctx, &p); err != nil {
		return domain.ReminderPolicy{}, RescheduleReport{}, persistenceError("save reminder policy", err)
	}
	s.log.Info().Str("user", userID).Bool("enabled", enabled).Int("advance", advanceMinutes).Msg("reminder policy saved")

	if s.rescheduler == nil {
		return p, RescheduleReport{UserID: userID}, nil
	}
	report, err := s.rescheduler.RescheduleUser(ctx, userID)
	return p, report, err
}

// SetEnabled keeps the stored lead time and flips the switch.
func (s *PolicyService) SetEnabled(ctx context.Context, userID string, enabled bool) (domain.ReminderPolicy, RescheduleReport, error) {
	current, err := s.Load(ctx, userID)
	if err != nil {
		return domain.ReminderPolicy{}, RescheduleReport{}, err
	}
	return s.Save(ctx, userID, enabled, current.AdvanceMinutes)
}

// SetAdvance keeps the switch and changes the lead time.
func (s *PolicyService) SetAdvance(ctx context.Context, userID string, advanceMinutes int) (domain.ReminderPolicy, RescheduleReport, error) {
	current, err := s.Load(ctx, userID)
	if err != nil {
		return domain.ReminderPolicy{}, RescheduleReport{}, err
	}
	return s.Save(ctx, userID, current.RemindersEnabled, advanceMinutes)
}
