package domain

import (
	"strconv"
	"strings"
	"time"
)

// FrequencyKind is the dosing cadence of a medication.
type FrequencyKind string

const (
	FrequencyEvery6h  FrequencyKind = "every_6h"
	FrequencyEvery8h  FrequencyKind = "every_8h"
	FrequencyEvery12h FrequencyKind = "every_12h"
	FrequencyEvery24h FrequencyKind = "every_24h"
	FrequencyCustom   FrequencyKind = "custom"
)

// legacyFrequencies maps the numeric labels of older records.
var legacyFrequencies = []FrequencyKind{
	FrequencyEvery6h,
	FrequencyEvery8h,
	FrequencyEvery12h,
	FrequencyEvery24h,
	FrequencyCustom,
}

// ParseFrequencyKind accepts kind names ("every_8h"), short forms ("8h")
// and legacy numeric labels ("1"). Anything unrecognized is custom so a
// dose is never confirmed without a follow-up.
func ParseFrequencyKind(s string) FrequencyKind {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case string(FrequencyEvery6h), "6h", "6":
		return FrequencyEvery6h
	case string(FrequencyEvery8h), "8h", "8":
		return FrequencyEvery8h
	case string(FrequencyEvery12h), "12h", "12":
		return FrequencyEvery12h
	case string(FrequencyEvery24h), "24h", "24", "daily":
		return FrequencyEvery24h
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(legacyFrequencies) {
		return legacyFrequencies[n]
	}
	return FrequencyCustom
}

// IntervalHours returns the fixed dosing interval, or 0 for custom (and
// unknown) kinds where the caller supplies the next instant explicitly.
func (k FrequencyKind) IntervalHours() int {
	switch k {
	case FrequencyEvery6h:
		return 6
	case FrequencyEvery8h:
		return 8
	case FrequencyEvery12h:
		return 12
	case FrequencyEvery24h:
		return 24
	default:
		return 0
	}
}

func (k FrequencyKind) Interval() time.Duration {
	return time.Duration(k.IntervalHours()) * time.Hour
}

func (k FrequencyKind) IsCustom() bool {
	return k.IntervalHours() == 0
}

// Normalize maps unknown kinds to custom.
func (k FrequencyKind) Normalize() FrequencyKind {
	if k.IsCustom() {
		return FrequencyCustom
	}
	return k
}

func (k FrequencyKind) Label() string {
	switch k {
	case FrequencyEvery6h:
		return "Every 6 hours"
	case FrequencyEvery8h:
		return "Every 8 hours"
	case FrequencyEvery12h:
		return "Every 12 hours"
	case FrequencyEvery24h:
		return "Every 24 hours"
	default:
		return "Custom"
	}
}

// ParseFrequencyInput is ParseFrequencyKind for user input, where a blank
// value stays blank so validation can reject it.
func ParseFrequencyInput(s string) FrequencyKind {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return ParseFrequencyKind(s)
}
