package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/domain"
	"github.com/tazhate/dosebot/internal/metrics"
)

// RescheduleReport summarizes a bulk reschedule of one user.
type RescheduleReport struct {
	UserID        string
	Medications   int
	Notifications int
	Failed        []string // medication ids that could not be planned
}

// Planner turns medications into registered notifications. It keeps an
// index of the notification ids each medication owns so cancellation never
// depends on id prefixes.
type Planner struct {
	registry Registry
	meds     MedicationStore
	users    UserStore
	policies PolicyLoader
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu           sync.Mutex
	byMedication map[string]map[string]struct{}
	afterUser    func(ctx context.Context, userID string)
}

func NewPlanner(registry Registry, meds MedicationStore, users UserStore, policies PolicyLoader, log zerolog.Logger, m *metrics.Metrics) *Planner {
	return &Planner{
		registry:     registry,
		meds:         meds,
		users:        users,
		policies:     policies,
		log:          log.With().Str("component", "planner").Logger(),
		metrics:      m,
		byMedication: make(map[string]map[string]struct{}),
	}
}

// SetAfterReschedule registers a hook run after every bulk reschedule of a
// user, such as calendar publishing.
func (p *Planner) SetAfterReschedule(fn func(ctx context.Context, userID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.afterUser = fn
}

// Bootstrap rebuilds the medication index from what the registry holds.
func (p *Planner) Bootstrap(ctx context.Context) error {
	scheduled, err := p.registry.ListScheduled(ctx)
	if err != nil {
		return schedulingError("list scheduled", err)
	}

	index := make(map[string]map[string]struct{})
	for _, n := range scheduled {
		key, err := domain.ParseNotificationKey(n.ID())
		if err != nil {
			p.log.Warn().Err(err).Str("notification", n.ID()).Msg("skip foreign notification")
			continue
		}
		ids, ok := index[key.MedicationID]
		if !ok {
			ids = make(map[string]struct{})
			index[key.MedicationID] = ids
		}
		ids[n.ID()] = struct{}{}
	}

	p.mu.Lock()
	p.byMedication = index
	p.mu.Unlock()
	return nil
}

// Plan replaces the medication's notifications with the set derived from
// its occurrences and policy. Disabled reminders leave none.
func (p *Planner) Plan(ctx context.Context, m *domain.Medication, policy domain.ReminderPolicy) ([]domain.ScheduledNotification, error) {
	if err := p.CancelForMedication(ctx, m.ID); err != nil {
		return nil, err
	}

	notifications := domain.DeriveNotifications(m, policy)
	if len(notifications) == 0 {
		return nil, nil
	}

	ids := make(map[string]struct{}, len(notifications))
	var errs []error
	for _, n := range notifications {
		if err := p.registry.ScheduleDailyRecurring(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		ids[n.ID()] = struct{}{}
	}

	p.mu.Lock()
	p.byMedication[m.ID] = ids
	p.mu.Unlock()

	if len(errs) > 0 {
		return notifications, schedulingError("schedule notifications for "+m.ID, errors.Join(errs...))
	}
	return notifications, nil
}

// PlanFor loads userID's policy and plans m with it.
func (p *Planner) PlanFor(ctx context.Context, m *domain.Medication, userID string) ([]domain.ScheduledNotification, error) {
	policy, err := p.policies.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Plan(ctx, m, policy)
}

// CancelForMedication cancels every notification the medication owns. Ids
// whose cancel fails stay indexed so the next call retries them.
func (p *Planner) CancelForMedication(ctx context.Context, medicationID string) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.byMedication[medicationID]))
	for id := range p.byMedication[medicationID] {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := p.registry.Cancel(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		p.forget(medicationID, id)
	}
	if len(errs) > 0 {
		return schedulingError("cancel notifications for "+medicationID, errors.Join(errs...))
	}
	return nil
}

// RescheduleUser cancels everything scheduled for the user, loads the
// policy once and plans every active medication the user owns. A failing
// medication is logged and skipped. Without notification permission the
// medications are planned as if reminders were off, arming nothing.
func (p *Planner) RescheduleUser(ctx context.Context, userID string) (RescheduleReport, error) {
	report := RescheduleReport{UserID: userID}
	log := p.log.With().Str("user", userID).Logger()

	scheduled, err := p.registry.ListScheduled(ctx)
	if err != nil {
		return report, schedulingError("list scheduled", err)
	}
	for _, n := range scheduled {
		if n.Payload.UserID != userID {
			continue
		}
		if err := p.registry.Cancel(ctx, n.ID()); err != nil {
			log.Warn().Err(err).Str("notification", n.ID()).Msg("cancel notification")
			continue
		}
		p.forget(n.Key.MedicationID, n.ID())
	}

	policy, err := p.policies.Load(ctx, userID)
	if err != nil {
		return report, err
	}
	granted, err := p.registry.RequestPermission(ctx, userID)
	if err != nil {
		return report, schedulingError("request permission", err)
	}
	if !granted {
		log.Info().Msg("notification permission denied")
		policy.RemindersEnabled = false
	}

	meds, err := p.meds.ListMedications(ctx, domain.MedicationFilter{OwnerID: userID, ActiveOnly: true})
	if err != nil {
		return report, persistenceError("list medications", err)
	}

	for _, m := range meds {
		report.Medications++
		planned, err := p.Plan(ctx, m, policy)
		if err != nil {
			report.Failed = append(report.Failed, m.ID)
			p.metrics.RescheduleFailed()
			log.Error().Stack().Err(err).Str("medication", m.ID).Msg("reschedule medication")
			continue
		}
		report.Notifications += len(planned)
	}

	log.Info().
		Int("medications", report.Medications).
		Int("notifications", report.Notifications).
		Int("failed", len(report.Failed)).
		Msg("user rescheduled")

	p.mu.Lock()
	hook := p.afterUser
	p.mu.Unlock()
	if hook != nil {
		hook(ctx, userID)
	}
	return report, nil
}

// RescheduleAll runs RescheduleUser for every known user.
func (p *Planner) RescheduleAll(ctx context.Context) ([]RescheduleReport, error) {
	users, err := p.users.ListUsers(ctx)
	if err != nil {
		return nil, persistenceError("list users", err)
	}

	reports := make([]RescheduleReport, 0, len(users))
	for _, u := range users {
		report, err := p.RescheduleUser(ctx, u.ID)
		if err != nil {
			p.log.Error().Stack().Err(err).Str("user", u.ID).Msg("reschedule user")
			p.metrics.RescheduleFailed()
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Scheduled returns the notification ids the medication owns, sorted.
func (p *Planner) Scheduled(medicationID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.byMedication[medicationID]))
	for id := range p.byMedication[medicationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Notifications lists the registry entries that belong to userID.
func (p *Planner) Notifications(ctx context.Context, userID string) ([]domain.ScheduledNotification, error) {
	scheduled, err := p.registry.ListScheduled(ctx)
	if err != nil {
		return nil, schedulingError("list scheduled", err)
	}
	var out []domain.ScheduledNotification
	for _, n := range scheduled {
		if n.Payload.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p *Planner) forget(medicationID, notificationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := p.byMedication[medicationID]
	delete(ids, notificationID)
	if len(ids) == 0 {
		delete(p.byMedication, medicationID)
	}
}
