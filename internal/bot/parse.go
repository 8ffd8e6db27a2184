package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/dosebot/internal/domain"
)

// Callback actions. Occurrences travel as epoch milliseconds and postpone
// targets as HHMM to stay within Telegram's 64-byte callback data.
const (
	actionTake     = "take"
	actionConfirm  = "confirm"
	actionCancel   = "cancel"
	actionOptions  = "opts"
	actionPostpone = "pp"
)

type callback struct {
	Action       string
	MedicationID string
	Occurrence   int64
	Clock        string // HH:MM, postpone only
}

func takeData(medicationID string, occurrence time.Time) string {
	return fmt.Sprintf("%s:%s:%d", actionTake, medicationID, occurrence.UnixMilli())
}

func confirmData(medicationID string, occurrence time.Time) string {
	return fmt.Sprintf("%s:%s:%d", actionConfirm, medicationID, occurrence.UnixMilli())
}

func optionsData(medicationID string, occurrence time.Time) string {
	return fmt.Sprintf("%s:%s:%d", actionOptions, medicationID, occurrence.UnixMilli())
}

func postponeData(medicationID string, occurrence time.Time, c domain.Clock) string {
	return fmt.Sprintf("%s:%s:%d:%02d%02d", actionPostpone, medicationID, occurrence.UnixMilli(), c.Hour, c.Minute)
}

func parseCallback(data string) (callback, error) {
	parts := strings.Split(data, ":")
	switch parts[0] {
	case actionCancel:
		return callback{Action: actionCancel}, nil
	case actionTake, actionConfirm, actionOptions:
		if len(parts) != 3 {
			return callback{}, fmt.Errorf("malformed callback %q", data)
		}
	case actionPostpone:
		if len(parts) != 4 || len(parts[3]) != 4 {
			return callback{}, fmt.Errorf("malformed callback %q", data)
		}
	default:
		return callback{}, fmt.Errorf("unknown callback %q", data)
	}

	if parts[1] == "" {
		return callback{}, fmt.Errorf("malformed callback %q", data)
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return callback{}, fmt.Errorf("malformed occurrence in %q: %w", data, err)
	}

	cb := callback{Action: parts[0], MedicationID: parts[1], Occurrence: ms}
	if cb.Action == actionPostpone {
		cb.Clock = parts[3][:2] + ":" + parts[3][2:]
	}
	return cb, nil
}

// parseAddArgs reads "name; dose; unit; frequency; HH:MM, HH:MM[; instructions]".
func parseAddArgs(args string) (domain.MedicationInput, error) {
	fields := strings.Split(args, ";")
	if len(fields) < 5 {
		return domain.MedicationInput{}, domain.Validationf("use /add name; dose; unit; frequency; times")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	dose, err := strconv.ParseFloat(strings.ReplaceAll(fields[1], ",", "."), 64)
	if err != nil {
		return domain.MedicationInput{}, domain.Validationf("dose must be a number, got %q", fields[1])
	}

	var times []string
	for _, t := range strings.FieldsFunc(fields[4], func(r rune) bool { return r == ',' || r == ' ' }) {
		times = append(times, t)
	}

	in := domain.MedicationInput{
		Name:       fields[0],
		DoseAmount: dose,
		DoseUnit:   fields[2],
		Frequency:  domain.ParseFrequencyInput(fields[3]),
		Times:      times,
	}
	if len(fields) > 5 {
		in.Instructions = strings.Join(fields[5:], ";")
	}
	return in, nil
}

// parseIndex reads a 1-based position into a list of n items.
func parseIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 1 || i > n {
		return 0, domain.Validationf("pick a number between 1 and %d", n)
	}
	return i - 1, nil
}

// splitDateTime splits "DD/MM/YYYY HH:MM".
func splitDateTime(s string) (date, clock string) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return strings.TrimSpace(s), ""
	}
	return fields[0], fields[1]
}
