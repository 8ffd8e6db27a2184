package domain

import "time"

const (
	DefaultAdvanceMinutes = 15
	MaxAdvanceMinutes     = 120
	// LateCheckMinutes is the fixed delay of the late-check notification.
	LateCheckMinutes = 30
)

// ReminderPolicy is the per-user switch and lead time for notifications.
type ReminderPolicy struct {
	UserID           string
	RemindersEnabled bool
	AdvanceMinutes   int
	UpdatedAt        time.Time
}

func DefaultReminderPolicy(userID string, enabled bool, advanceMinutes int) ReminderPolicy {
	return ReminderPolicy{
		UserID:           userID,
		RemindersEnabled: enabled,
		AdvanceMinutes:   advanceMinutes,
	}
}

func (p ReminderPolicy) Validate() error {
	if p.AdvanceMinutes < 0 || p.AdvanceMinutes > MaxAdvanceMinutes {
		return ErrInvalidAdvanceTime
	}
	return nil
}
