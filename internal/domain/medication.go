package domain

import (
	"strconv"
	"strings"
	"time"
)

type Medication struct {
	ID           string
	OwnerID      string // empty for legacy records
	Name         string
	DoseAmount   float64
	DoseUnit     string
	Frequency    FrequencyKind
	Instructions string
	Occurrences  []time.Time // unordered, unique per instant
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a copy that does not share the occurrence slice.
func (m *Medication) Clone() *Medication {
	if m == nil {
		return nil
	}
	c := *m
	c.Occurrences = append([]time.Time(nil), m.Occurrences...)
	return &c
}

func (m *Medication) IsLegacy() bool {
	return m.OwnerID == ""
}

// CanEdit reports whether userID may mutate the medication. Legacy
// records are editable by anyone, who then claims them.
func (m *Medication) CanEdit(userID string) bool {
	return m.IsLegacy() || m.OwnerID == userID
}

func (m *Medication) HasOccurrence(t time.Time) bool {
	return indexOfInstant(m.Occurrences, t) >= 0
}

// Dosage renders "500 mg".
func (m *Medication) Dosage() string {
	amount := strconv.FormatFloat(m.DoseAmount, 'f', -1, 64)
	return strings.TrimSpace(amount + " " + m.DoseUnit)
}

// MedicationFilter selects medications from the store.
type MedicationFilter struct {
	OwnerID       string
	IncludeLegacy bool // also match records without owner
	ActiveOnly    bool
}

// MedicationInput is the user-entered part of a medication.
type MedicationInput struct {
	Name         string
	DoseAmount   float64
	DoseUnit     string
	Frequency    FrequencyKind
	Instructions string
	Times        []string // HH:MM entries seeded on today's date
}

// Validate checks required fields and returns the parsed clock times.
func (in MedicationInput) Validate() ([]Clock, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, Validationf("name is required")
	}
	if in.DoseAmount <= 0 {
		return nil, Validationf("dose must be a positive number")
	}
	if strings.TrimSpace(in.DoseUnit) == "" {
		return nil, Validationf("unit is required")
	}
	if in.Frequency == "" {
		return nil, Validationf("frequency is required")
	}
	clocks := make([]Clock, 0, len(in.Times))
	for _, t := range in.Times {
		c, err := ParseClock(t)
		if err != nil {
			return nil, err
		}
		clocks = append(clocks, c)
	}
	return clocks, nil
}

// NormalizeName capitalizes the first letter.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	r := []rune(name)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// DoseEvent is the append-only audit record of a confirmed dose.
type DoseEvent struct {
	ID             string
	MedicationID   string
	MedicationName string
	OwnerID        string
	TakenAt        time.Time
}
