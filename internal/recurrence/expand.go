// Package recurrence materializes stored series into per-day instances.
//
// Expansion is a pure function of the stored records and the requested
// window. Candidate dates come from an RFC 5545 rule (FREQ=DAILY, WEEKLY
// or MONTHLY pinned to the anchor's weekday or day-of-month), so:
//
//   - weekly occurrences keep the anchor's weekday
//   - monthly occurrences keep the anchor's day-of-month; months that are
//     too short for it are skipped, never rolled over to their last day
//   - exception dates and the inclusive end date remove candidates
//
// All date arithmetic runs at noon UTC so no daylight-saving transition
// can move a candidate onto a neighbouring day.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
)

// Expand returns every instance that falls within the given month.
func Expand(events []model.Event, year int, month time.Month) []model.Instance {
	from := model.DateOf(year, month, 1)
	to := model.DateOf(year, month, model.DaysIn(year, month))
	return ExpandRange(events, from, to)
}

// ExpandRange returns every instance dated within [from, to] (inclusive
// YYYY-MM-DD bounds). Invalid bounds yield no instances.
func ExpandRange(events []model.Event, from, to string) []model.Instance {
	if !model.ValidDate(from) || !model.ValidDate(to) || to < from {
		return nil
	}

	out := make([]model.Instance, 0)
	for _, ev := range events {
		switch s := ev.Schedule().(type) {
		case model.Single:
			// One-off events need no rule; the fixed-width date format
			// makes string comparison a date comparison.
			if s.Date >= from && s.Date <= to {
				out = append(out, instanceOf(ev, s.Date))
			}
		case model.Recurring:
			dates, err := occurrenceDates(s, from, to)
			if err != nil {
				appLog.Warn("recurrence: skipping malformed series", "series", ev.ID, "err", err)
				continue
			}
			for _, d := range dates {
				out = append(out, instanceOf(ev, d))
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Ref.Date != b.Ref.Date {
			return a.Ref.Date < b.Ref.Date
		}
		if a.Event.StartTime != b.Event.StartTime {
			return a.Event.StartTime < b.Event.StartTime
		}
		return a.Ref.SeriesID < b.Ref.SeriesID
	})
	return out
}

// Occurs reports whether ev produces an instance on date.
func Occurs(ev model.Event, date string) bool {
	return len(ExpandRange([]model.Event{ev}, date, date)) == 1
}

// AvailableTags returns the sorted set of tags used by events.
func AvailableTags(events []model.Event) []string {
	seen := make(map[string]struct{})
	for _, ev := range events {
		for _, t := range ev.Tags {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func instanceOf(ev model.Event, date string) model.Instance {
	ref := model.InstanceRef{SeriesID: ev.ID, Date: date}
	cp := ev.Clone()
	cp.Date = date
	cp.ID = ref.Key()
	return model.Instance{Ref: ref, Event: cp}
}

// occurrenceDates lists the dates of a recurring series within [from, to].
func occurrenceDates(s model.Recurring, from, to string) ([]string, error) {
	if s.Anchor > to {
		return nil, nil
	}
	if s.EndsOn != "" && (s.EndsOn < s.Anchor || s.EndsOn < from) {
		// Bounded before the window (or before it ever started).
		return nil, nil
	}

	anchor, err := model.ParseDate(s.Anchor)
	if err != nil {
		return nil, err
	}
	freq, err := frequencyOf(s.Pattern)
	if err != nil {
		return nil, err
	}

	// from/to were validated by the caller.
	fromT, _ := model.ParseDate(from)
	toT, _ := model.ParseDate(to)

	// The rule starts at the window with the anchor's weekday or
	// day-of-month pinned, and never runs past the window.
	start := anchor
	if fromT.After(start) {
		start = fromT
	}
	opt := rrule.ROption{Freq: freq, Dtstart: start, Until: toT}
	switch freq {
	case rrule.WEEKLY:
		opt.Byweekday = []rrule.Weekday{weekdays[anchor.Weekday()]}
	case rrule.MONTHLY:
		opt.Bymonthday = []int{anchor.Day()}
	}
	if s.EndsOn != "" {
		until, err := model.ParseDate(s.EndsOn)
		if err != nil {
			return nil, err
		}
		if until.Before(opt.Until) {
			opt.Until = until
		}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rule: %w", err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range s.Exceptions {
		t, err := model.ParseDate(ex)
		if err != nil {
			// An unreadable exception cannot match any candidate.
			continue
		}
		set.ExDate(t)
	}

	times := set.Between(fromT, toT, true)
	dates := make([]string, 0, len(times))
	for _, t := range times {
		d := model.FormatDate(t)
		if !admits(s, d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

var weekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// admits applies the series bounds to a candidate date.
func admits(s model.Recurring, date string) bool {
	if date < s.Anchor {
		return false
	}
	if s.EndsOn != "" && date > s.EndsOn {
		return false
	}
	for _, ex := range s.Exceptions {
		if ex == date {
			return false
		}
	}
	return true
}

var errUnsupportedPattern = errors.New("unsupported recurrence pattern")

func frequencyOf(r model.Recurrence) (rrule.Frequency, error) {
	switch r {
	case model.RecurrenceDaily:
		return rrule.DAILY, nil
	case model.RecurrenceWeekly:
		return rrule.WEEKLY, nil
	case model.RecurrenceMonthly:
		return rrule.MONTHLY, nil
	}
	return 0, fmt.Errorf("%w: %q", errUnsupportedPattern, r)
}

// Frequency exposes the rule frequency for a pattern (used by ICS export).
func Frequency(r model.Recurrence) (rrule.Frequency, bool) {
	f, err := frequencyOf(r.Normalize())
	return f, err == nil
}
