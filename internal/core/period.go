package core

import (
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// ParseMonth parses a YYYY-MM key and returns the first day of that month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t, nil
}

// MonthKey returns the YYYY-MM key of t.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// MonthRange resolves a YYYY-MM key into its first and last calendar day,
// both formatted as YYYY-MM-DD. "2025-02" yields "2025-02-01".."2025-02-28".
func MonthRange(month string) (start, end string, err error) {
	first, err := ParseMonth(month)
	if err != nil {
		return "", "", err
	}
	// Day 0 of the next month is the last day of this one.
	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return first.Format(DateLayout), last.Format(DateLayout), nil
}

// ParseDay validates a YYYY-MM-DD date used as a range bound.
func ParseDay(s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}

// ValidateRange checks both bounds and that start is not after end.
func ValidateRange(start, end string) (string, string, error) {
	s, err := ParseDay(start)
	if err != nil {
		return "", "", err
	}
	e, err := ParseDay(end)
	if err != nil {
		return "", "", err
	}
	if s > e {
		return "", "", ErrInvalidPeriod
	}
	return s, e, nil
}
