package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
)

// ImportOptions controls how foreign calendars are mapped.
type ImportOptions struct {
	// Location receives UTC (Z) date-times; nil means time.Local.
	Location *time.Location
	// Color is given to every imported series.
	Color model.Color
}

// Import reads the VEVENTs of body as series. Overrides (RECURRENCE-ID)
// and events without UID or DTSTART are skipped and logged.
func Import(body []byte, opts ImportOptions) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	out := make([]model.Event, 0)
	for _, vev := range cal.Events() {
		ev, err := importEvent(vev, loc)
		if err != nil {
			appLog.Warn("ics: skipping vevent", "err", err)
			continue
		}
		if opts.Color != "" {
			ev.Color = opts.Color
		}
		out = append(out, ev.Normalized())
	}
	appLog.Info("ics import completed", "event_count", len(out))
	return out, nil
}

func importEvent(vev *ical.VEvent, loc *time.Location) (model.Event, error) {
	var ev model.Event

	uid := propValue(vev, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return ev, errors.New("missing UID")
	}
	if vev.GetProperty("RECURRENCE-ID") != nil {
		return ev, fmt.Errorf("%s: per-instance override not supported", uid)
	}
	// Series ids must not contain the instance key separator.
	ev.ID = strings.ReplaceAll(uid, "_", "-")
	ev.Title = unescapeText(propValue(vev, ical.ComponentPropertySummary))
	ev.Description = unescapeText(propValue(vev, ical.ComponentPropertyDescription))

	rawStart := propValue(vev, ical.ComponentPropertyDtStart)
	start, allDay, err := parseValue(rawStart, loc)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", uid, err)
	}
	ev.Date = model.FormatDate(start)
	if allDay {
		ev.StartTime, ev.EndTime = "00:00", "23:59"
	} else {
		ev.StartTime = start.Format(model.TimeLayout)
		ev.EndTime = endTime(vev, start, loc)
	}

	if raw := propValue(vev, ical.ComponentPropertyRrule); raw != "" {
		applyRule(&ev, raw, loc, !strings.HasSuffix(rawStart, "Z"))
	}
	if ev.Recurrence.Repeats() {
		for _, p := range vev.GetProperties(ical.ComponentPropertyExdate) {
			for _, part := range strings.Split(p.Value, ",") {
				if t, _, err := parseValue(part, loc); err == nil {
					ev.ExceptionDates = append(ev.ExceptionDates, model.FormatDate(t))
				}
			}
		}
	}

	for _, p := range vev.GetProperties(ical.ComponentPropertyCategories) {
		for _, tag := range strings.Split(p.Value, ",") {
			if tag = strings.TrimSpace(unescapeText(tag)); tag != "" {
				ev.Tags = append(ev.Tags, tag)
			}
		}
	}
	return ev, nil
}

// endTime reads DTEND on the start day. Missing or multi-day ends fall
// back to one hour after start, capped at the end of the day.
func endTime(vev *ical.VEvent, start time.Time, loc *time.Location) string {
	if raw := propValue(vev, ical.ComponentPropertyDtEnd); raw != "" {
		if end, _, err := parseValue(raw, loc); err == nil && model.FormatDate(end) == model.FormatDate(start) && !end.Before(start) {
			return end.Format(model.TimeLayout)
		}
	}
	end := start.Add(time.Hour)
	if model.FormatDate(end) != model.FormatDate(start) {
		return "23:59"
	}
	return end.Format(model.TimeLayout)
}

// applyRule maps an RRULE onto the series cadence. Rules other than
// plain DAILY, WEEKLY or MONTHLY are simplified or dropped. With a
// floating DTSTART the UNTIL calendar date is taken as written, even
// when a producer stamped it with Z.
func applyRule(ev *model.Event, raw string, loc *time.Location, floatingStart bool) {
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		appLog.Warn("ics: unreadable RRULE, importing as single", "id", ev.ID, "rrule", raw, "err", err)
		return
	}
	switch opt.Freq {
	case rrule.DAILY:
		ev.Recurrence = model.RecurrenceDaily
	case rrule.WEEKLY:
		ev.Recurrence = model.RecurrenceWeekly
	case rrule.MONTHLY:
		ev.Recurrence = model.RecurrenceMonthly
	default:
		appLog.Warn("ics: unsupported frequency, importing as single", "id", ev.ID, "rrule", raw)
		return
	}
	if opt.Interval > 1 || len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || opt.Count > 0 {
		appLog.Warn("ics: rule simplified", "id", ev.ID, "rrule", raw)
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		if !floatingStart {
			until = until.In(loc)
		}
		ev.RecurrenceEndsOn = model.FormatDate(until)
	}
}

func propValue(vev *ical.VEvent, p ical.ComponentProperty) string {
	if prop := vev.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// parseValue reads a DATE or DATE-TIME value. UTC values are moved to
// loc; floating ones keep their wall clock.
func parseValue(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse(floatingLayout+"Z", v)
		return t.In(loc), false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation(floatingLayout, v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
