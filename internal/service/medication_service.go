package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/domain"
)

type SaveResult struct {
	Medication *domain.Medication
	// RemindersScheduled is false when no notification was armed, because
	// permission was denied, reminders are off or planning failed. The
	// medication is saved either way.
	RemindersScheduled bool
	Notifications      int
	NotifyErr          error
}

type MedicationService struct {
	meds     MedicationStore
	cache    *MedicationCache
	planner  *Planner
	registry Registry
	location *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

func NewMedicationService(meds MedicationStore, cache *MedicationCache, planner *Planner, registry Registry, loc *time.Location, log zerolog.Logger) *MedicationService {
	return &MedicationService{
		meds:     meds,
		cache:    cache,
		planner:  planner,
		registry: registry,
		location: loc,
		log:      log.With().Str("component", "medication").Logger(),
		now:      time.Now,
	}
}

// Register creates a medication owned by userID with one occurrence per
// entered time, all on today's date.
func (s *MedicationService) Register(ctx context.Context, userID string, in domain.MedicationInput) (SaveResult, error) {
	m := &domain.Medication{OwnerID: userID, Active: true}
	if err := s.apply(m, in); err != nil {
		return SaveResult{}, err
	}

	if err := s.meds.CreateMedication(ctx, m); err != nil {
		return SaveResult{}, persistenceError("create medication", err)
	}
	s.log.Info().Str("medication", m.ID).Str("user", userID).Int("occurrences", len(m.Occurrences)).Msg("medication registered")

	return s.schedule(ctx, m, userID), nil
}

// Update replaces the descriptive fields and the whole occurrence set.
// Legacy medications are claimed by the editor.
func (s *MedicationService) Update(ctx context.Context, userID, id string, in domain.MedicationInput) (SaveResult, error) {
	m, err := s.editable(ctx, userID, id)
	if err != nil {
		return SaveResult{}, err
	}
	if err := s.apply(m, in); err != nil {
		return SaveResult{}, err
	}
	if m.IsLegacy() {
		m.OwnerID = userID
	}

	if err := s.meds.UpdateMedication(ctx, m); err != nil {
		s.cache.Invalidate(id)
		return SaveResult{}, persistenceError("update medication", err)
	}
	s.cache.Invalidate(id)

	return s.schedule(ctx, m, userID), nil
}

// Deactivate soft-deletes the medication and cancels its notifications.
func (s *MedicationService) Deactivate(ctx context.Context, userID, id string) error {
	m, err := s.editable(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.meds.SetMedicationActive(ctx, m.ID, false); err != nil {
		return persistenceError("deactivate medication", err)
	}
	s.cache.Invalidate(id)
	s.log.Info().Str("medication", id).Str("user", userID).Msg("medication deactivated")

	return s.planner.CancelForMedication(ctx, id)
}

// List returns the active medications the user owns plus unowned legacy ones.
func (s *MedicationService) List(ctx context.Context, userID string) ([]*domain.Medication, error) {
	meds, err := s.meds.ListMedications(ctx, domain.MedicationFilter{
		OwnerID:       userID,
		IncludeLegacy: true,
		ActiveOnly:    true,
	})
	if err != nil {
		return nil, persistenceError("list medications", err)
	}
	return meds, nil
}

func (s *MedicationService) Get(ctx context.Context, userID, id string) (*domain.Medication, error) {
	return s.editable(ctx, userID, id)
}

// Today is the daily view: medications due today, pending ones first.
func (s *MedicationService) Today(ctx context.Context, userID string) ([]domain.DailyEntry, error) {
	meds, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.BuildDailyView(meds, s.now().In(s.location)), nil
}

func (s *MedicationService) apply(m *domain.Medication, in domain.MedicationInput) error {
	clocks, err := in.Validate()
	if err != nil {
		return err
	}

	today := s.now().In(s.location)
	var occurrences []time.Time
	for _, c := range clocks {
		occurrences, _ = domain.AddOccurrence(occurrences, c.On(today))
	}

	m.Name = domain.NormalizeName(in.Name)
	m.DoseAmount = in.DoseAmount
	m.DoseUnit = strings.TrimSpace(in.DoseUnit)
	m.Frequency = in.Frequency.Normalize()
	m.Instructions = strings.TrimSpace(in.Instructions)
	m.Occurrences = occurrences
	return nil
}

// schedule asks for notification permission and plans m when granted.
func (s *MedicationService) schedule(ctx context.Context, m *domain.Medication, userID string) SaveResult {
	result := SaveResult{Medication: m}
	log := s.log.With().Str("medication", m.ID).Logger()

	granted, err := s.registry.RequestPermission(ctx, userID)
	if err != nil {
		result.NotifyErr = schedulingError("request permission", err)
		log.Warn().Err(err).Msg("notification permission")
		return result
	}
	if !granted {
		log.Info().Msg("notification permission denied")
		return result
	}

	planned, err := s.planner.PlanFor(ctx, m, userID)
	if err != nil {
		result.NotifyErr = err
		log.Error().Stack().Err(err).Msg("plan notifications")
		return result
	}
	result.Notifications = len(planned)
	result.RemindersScheduled = len(planned) > 0
	return result
}

func (s *MedicationService) editable(ctx context.Context, userID, id string) (*domain.Medication, error) {
	m, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("medication %s: %w", id, domain.ErrNotFound)
	}
	if !m.CanEdit(userID) {
		return nil, fmt.Errorf("medication %s: %w", id, domain.ErrPermissionDenied)
	}
	return m, nil
}
