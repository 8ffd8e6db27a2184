package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

var (
	nonDigitRe    = regexp.MustCompile(`[^\d]`)
	strictClockRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
	strictDateRe  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// ParseClock parses a user-entered time of day. An hour alone ("8") means
// the top of the hour; "0830" and "08:30" are both 08:30.
func ParseClock(s string) (Clock, error) {
	digits := nonDigitRe.ReplaceAllString(strings.TrimSpace(s), "")
	var hh, mm string
	switch {
	case len(digits) == 0:
		return Clock{}, Validationf("empty time")
	case len(digits) <= 2:
		hh, mm = digits, "00"
	case len(digits) == 3 || len(digits) == 4:
		hh, mm = digits[:len(digits)-2], digits[len(digits)-2:]
	default:
		return Clock{}, Validationf("invalid time %q, use HH:MM", s)
	}

	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	c := Clock{Hour: hour, Minute: minute}
	if !c.Valid() {
		return Clock{}, Validationf("invalid time %q, use HH:MM", s)
	}
	return c, nil
}

// ParseStrictClock accepts exactly HH:MM.
func ParseStrictClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if !strictClockRe.MatchString(s) {
		return Clock{}, Validationf("invalid time %q, use HH:MM", s)
	}
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[3:])
	c := Clock{Hour: hour, Minute: minute}
	if !c.Valid() {
		return Clock{}, Validationf("invalid time %q, use HH:MM", s)
	}
	return c, nil
}

func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock time on day's calendar date, in
// day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// Add shifts the clock by minutes, wrapping around midnight.
func (c Clock) Add(minutes int) Clock {
	total := ((c.Hour*60+c.Minute+minutes)%(24*60) + 24*60) % (24 * 60)
	return Clock{Hour: total / 60, Minute: total % 60}
}

func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseCustomInstant builds the explicit next-dose instant from a
// DD/MM/YYYY date and an HH:MM time in loc.
func ParseCustomInstant(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" || strings.TrimSpace(clock) == "" {
		return time.Time{}, Validationf("date and time are required")
	}
	if !strictDateRe.MatchString(date) {
		return time.Time{}, Validationf("invalid date %q, use DD/MM/YYYY", date)
	}
	c, err := ParseStrictClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	day, err := time.ParseInLocation("02/01/2006", date, loc)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q", date)
	}
	return c.On(day), nil
}

func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
