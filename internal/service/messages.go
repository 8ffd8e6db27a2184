package service

import (
	"fmt"

	"github.com/tazhate/dosebot/internal/domain"
)

// ConfirmationMessage is the user-facing text for a dose confirmation.
func ConfirmationMessage(r TakeResult) string {
	name := "Medicine"
	if r.Medication != nil {
		name = r.Medication.Name
	}

	switch r.Decision {
	case DecisionCancelled:
		return "Dose not recorded."
	case DecisionNeedsCustomInput:
		return fmt.Sprintf("✅ %s recorded. When is the next dose? Send the date and time (DD/MM/YYYY HH:MM).", name)
	}

	if !r.HasNext {
		return fmt.Sprintf("✅ %s recorded.", name)
	}
	if r.NextIsToday {
		return fmt.Sprintf("✅ %s recorded. Next dose today at %s.", name, domain.FormatClock(r.Next))
	}
	return fmt.Sprintf("✅ %s recorded. Next dose on %s at %s.", name, domain.FormatDate(r.Next), domain.FormatClock(r.Next))
}
