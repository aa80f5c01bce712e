package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// ParseDate parses a YYYY-MM-DD string into a UTC time at noon. Noon keeps
// weekday and day arithmetic clear of any daylight-saving shift.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", s, err)
	}
	return t.Add(12 * time.Hour), nil
}

// FormatDate renders t's calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOf builds the YYYY-MM-DD string for a calendar day.
func DateOf(year int, month time.Month, day int) string {
	return FormatDate(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// DayBefore returns the calendar day preceding date.
func DayBefore(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, -1)), nil
}

// ValidDate reports whether s is a well-formed YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// ValidTime reports whether s is a well-formed HH:mm time.
func ValidTime(s string) bool {
	if len(s) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// Validate rejects records that must never reach a store.
func Validate(e Event) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(e.ID) == "":
		return invalid("id is required")
	case strings.Contains(e.ID, instanceKeySep):
		return invalid("id %q must not contain %q", e.ID, instanceKeySep)
	case strings.TrimSpace(e.Title) == "":
		return invalid("title is required")
	case !ValidDate(e.Date):
		return invalid("date %q is not YYYY-MM-DD", e.Date)
	case !ValidTime(e.StartTime):
		return invalid("startTime %q is not HH:mm", e.StartTime)
	case !ValidTime(e.EndTime):
		return invalid("endTime %q is not HH:mm", e.EndTime)
	case e.EndTime < e.StartTime:
		return invalid("endTime %s is before startTime %s", e.EndTime, e.StartTime)
	case !e.Recurrence.Valid():
		return invalid("unknown recurrence %q", e.Recurrence)
	case e.RecurrenceEndsOn != "" && !ValidDate(e.RecurrenceEndsOn):
		return invalid("recurrenceEndsOn %q is not YYYY-MM-DD", e.RecurrenceEndsOn)
	}
	for _, d := range e.ExceptionDates {
		if !ValidDate(d) {
			return invalid("exception date %q is not YYYY-MM-DD", d)
		}
	}
	return nil
}

// MonthWeeks lays out a month as rows of seven dates starting on
// weekStart. Leading and trailing cells belong to the adjacent months.
func MonthWeeks(year int, month time.Month, weekStart time.Weekday) [][]string {
	first := time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
	day := first.AddDate(0, 0, -((int(first.Weekday()) - int(weekStart) + 7) % 7))
	last := time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC)

	var weeks [][]string
	for !day.After(last) {
		week := make([]string, 7)
		for i := range week {
			week[i] = FormatDate(day)
			day = day.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
	}
	return weeks
}
