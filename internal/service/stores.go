package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tazhate/dosebot/internal/domain"
)

// MedicationStore is the medication side of the document store.
type MedicationStore interface {
	CreateMedication(ctx context.Context, m *domain.Medication) error
	GetMedication(ctx context.Context, id string) (*domain.Medication, error)
	ListMedications(ctx context.Context, filter domain.MedicationFilter) ([]*domain.Medication, error)
	UpdateMedication(ctx context.Context, m *domain.Medication) error
	ClaimMedication(ctx context.Context, id, ownerID string) (bool, error)
	SetMedicationActive(ctx context.Context, id string, active bool) error
	AddOccurrence(ctx context.Context, medicationID string, at time.Time) (bool, error)
	RemoveOccurrence(ctx context.Context, medicationID string, at time.Time) (bool, error)
	ReplaceOccurrence(ctx context.Context, medicationID string, old, next time.Time) error
}

type DoseEventStore interface {
	InsertDoseEvent(ctx context.Context, e *domain.DoseEvent) error
	ListDoseEvents(ctx context.Context, ownerID string, from, to time.Time) ([]*domain.DoseEvent, error)
}

type PolicyStore interface {
	GetReminderPolicy(ctx context.Context, userID string) (*domain.ReminderPolicy, error)
	SaveReminderPolicy(ctx context.Context, p *domain.ReminderPolicy) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Registry is the notification registry that fires daily triggers.
type Registry interface {
	ScheduleDailyRecurring(ctx context.Context, n domain.ScheduledNotification) error
	ListScheduled(ctx context.Context) ([]domain.ScheduledNotification, error)
	Cancel(ctx context.Context, notificationID string) error
	RequestPermission(ctx context.Context, userID string) (bool, error)
}

// PolicyLoader resolves a user's reminder policy, falling back to defaults.
type PolicyLoader interface {
	Load(ctx context.Context, userID string) (domain.ReminderPolicy, error)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func schedulingError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrNotificationScheduling, err)
}
