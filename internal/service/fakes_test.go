package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tazhate/dosebot/internal/calendar"
	"github.com/tazhate/dosebot/internal/domain"
)

var (
	brt     = time.FixedZone("BRT", -3*60*60)
	errDown = errors.New("store unavailable")
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.June, day, hour, minute, 0, 0, brt)
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memStore is an in-memory document store.
type memStore struct {
	mu       sync.Mutex
	meds     map[string]*domain.Medication
	order    []string
	events   []*domain.DoseEvent
	policies map[string]domain.ReminderPolicy
	users    []*domain.User

	failEvents  bool
	failReplace bool
	failRemove  bool
	// loseOnReplace drops the occurrence right before a replace, as a
	// concurrent writer outside this process would.
	loseOnReplace bool
	gets          int
}

func newMemStore() *memStore {
	return &memStore{
		meds:     make(map[string]*domain.Medication),
		policies: make(map[string]domain.ReminderPolicy),
	}
}

func (s *memStore) put(m *domain.Medication) *domain.Medication {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.meds[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.meds[m.ID] = m.Clone()
	return m
}

func (s *memStore) medication(id string) *domain.Medication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meds[id].Clone()
}

func (s *memStore) CreateMedication(_ context.Context, m *domain.Medication) error {
	s.put(m)
	return nil
}

func (s *memStore) GetMedication(_ context.Context, id string) (*domain.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	m, ok := s.meds[id]
	if !ok {
		return nil, nil
	}
	return m.Clone(), nil
}

func (s *memStore) ListMedications(_ context.Context, f domain.MedicationFilter) ([]*domain.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Medication
	for _, id := range s.order {
		m := s.meds[id]
		if f.OwnerID != "" && m.OwnerID != f.OwnerID && !(f.IncludeLegacy && m.IsLegacy()) {
			continue
		}
		if f.ActiveOnly && !m.Active {
			continue
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *memStore) UpdateMedication(_ context.Context, m *domain.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meds[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.meds[m.ID] = m.Clone()
	return nil
}

func (s *memStore) ClaimMedication(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meds[id]
	if !ok || !m.IsLegacy() {
		return false, nil
	}
	m.OwnerID = ownerID
	return true, nil
}

func (s *memStore) SetMedicationActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meds[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Active = active
	return nil
}

func (s *memStore) AddOccurrence(_ context.Context, id string, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meds[id]
	var added bool
	m.Occurrences, added = domain.AddOccurrence(m.Occurrences, t)
	return added, nil
}

func (s *memStore) RemoveOccurrence(_ context.Context, id string, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemove {
		return false, errDown
	}
	m := s.meds[id]
	var removed bool
	m.Occurrences, removed = domain.RemoveOccurrence(m.Occurrences, t)
	return removed, nil
}

func (s *memStore) ReplaceOccurrence(_ context.Context, id string, old, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace {
		return errDown
	}
	m := s.meds[id]
	if s.loseOnReplace {
		m.Occurrences, _ = domain.RemoveOccurrence(m.Occurrences, old)
	}
	list, removed := domain.RemoveOccurrence(m.Occurrences, old)
	if !removed {
		return domain.ErrNotFound
	}
	m.Occurrences, _ = domain.AddOccurrence(list, next)
	return nil
}

func (s *memStore) InsertDoseEvent(_ context.Context, e *domain.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvents {
		return errDown
	}
	e.ID = uuid.NewString()
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) ListDoseEvents(_ context.Context, ownerID string, from, to time.Time) ([]*domain.DoseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DoseEvent
	for _, e := range s.events {
		if e.OwnerID == ownerID && !e.TakenAt.Before(from) && !e.TakenAt.After(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	return out, nil
}

func (s *memStore) GetReminderPolicy(_ context.Context, userID string) (*domain.ReminderPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) SaveReminderPolicy(_ context.Context, p *domain.ReminderPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.UserID] = *p
	return nil
}

func (s *memStore) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users = append(s.users, u)
	return nil
}

func (s *memStore) GetUserByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListUsers(context.Context) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.User(nil), s.users...), nil
}

// memRegistry is an in-memory notification registry.
type memRegistry struct {
	mu         sync.Mutex
	scheduled  map[string]domain.ScheduledNotification
	denied     bool
	failFor    map[string]bool // medication ids whose scheduling fails
	failCancel bool
	cancels    int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		scheduled: make(map[string]domain.ScheduledNotification),
		failFor:   make(map[string]bool),
	}
}

func (r *memRegistry) ScheduleDailyRecurring(_ context.Context, n domain.ScheduledNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[n.Key.MedicationID] {
		return errors.New("registry rejected " + n.ID())
	}
	r.scheduled[n.ID()] = n
	return nil
}

func (r *memRegistry) ListScheduled(context.Context) ([]domain.ScheduledNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ScheduledNotification, 0, len(r.scheduled))
	for _, n := range r.scheduled {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (r *memRegistry) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCancel {
		return errors.New("registry rejected cancel of " + id)
	}
	r.cancels++
	delete(r.scheduled, id)
	return nil
}

func (r *memRegistry) RequestPermission(context.Context, string) (bool, error) {
	return !r.denied, nil
}

func (r *memRegistry) ids() []string {
	list, _ := r.ListScheduled(context.Background())
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.ID())
	}
	return ids
}

func (r *memRegistry) idsFor(medicationID string) []string {
	var ids []string
	for _, id := range r.ids() {
		key, err := domain.ParseNotificationKey(id)
		if err == nil && key.MedicationID == medicationID {
			ids = append(ids, id)
		}
	}
	return ids
}

// fakePublisher records published slots.
type fakePublisher struct {
	mu      sync.Mutex
	current map[string]bool
	removed []string
}

func (p *fakePublisher) Publish(_ context.Context, cal *ical.Calendar) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = make(map[string]bool)
	var uids []string
	for uid := range calendar.Split(cal) {
		p.current[uid] = true
		uids = append(uids, uid)
	}
	return uids, nil
}

func (p *fakePublisher) Remove(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, uid)
	return nil
}

// harness wires the services the way cmd/dosebot does.
type harness struct {
	store      *memStore
	registry   *memRegistry
	cache      *MedicationCache
	policies   *PolicyService
	planner    *Planner
	doses      *DoseService
	medication *MedicationService
}

func newHarness(now time.Time) *harness {
	store := newMemStore()
	registry := newMemRegistry()
	log := zerolog.Nop()

	cache := NewMedicationCache(store)
	policies := NewPolicyService(store, true, domain.DefaultAdvanceMinutes, log)
	planner := NewPlanner(registry, store, store, policies, log, nil)
	policies.SetRescheduler(planner)

	doses := NewDoseService(store, store, cache, planner, brt, log, nil)
	doses.now = fixedNow(now)
	meds := NewMedicationService(store, cache, planner, registry, brt, log)
	meds.now = fixedNow(now)

	return &harness{
		store:      store,
		registry:   registry,
		cache:      cache,
		policies:   policies,
		planner:    planner,
		doses:      doses,
		medication: meds,
	}
}

func (h *harness) addMedication(owner string, freq domain.FrequencyKind, occurrences ...time.Time) *domain.Medication {
	return h.store.put(&domain.Medication{
		OwnerID:     owner,
		Name:        "Amoxicillin",
		DoseAmount:  500,
		DoseUnit:    "mg",
		Frequency:   freq,
		Occurrences: occurrences,
		Active:      true,
	})
}
