// Package ics converts series to and from iCalendar text.
//
// Export writes the minimal subset subscribers need: floating local
// DTSTART/DTEND, one RRULE per series, EXDATEs and CATEGORIES. Import
// reads the same subset back.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"teamsync/internal/model"
	"teamsync/internal/recurrence"
)

const floatingLayout = "20060102T150405"

// Options controls calendar-level properties of an export.
type Options struct {
	// ProductName appears in PRODID as "-//{ProductName}//Calendar//EN".
	ProductName string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export renders events as a VCALENDAR. Callers filter events for the
// viewer first.
func Export(events []model.Event, opts Options) string {
	name := opts.ProductName
	if name == "" {
		name = "TeamSync"
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId("-//" + name + "//Calendar//EN")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		ev = ev.Normalized()
		vev := cal.AddEvent(ev.ID)
		vev.SetDtStampTime(now.UTC())
		vev.SetProperty(ical.ComponentPropertyDtStart, floating(ev.Date, ev.StartTime))
		vev.SetProperty(ical.ComponentPropertyDtEnd, floating(ev.Date, ev.EndTime))
		vev.SetSummary(ev.Title)
		vev.SetDescription(ev.Description)

		if rule, ok := ruleFor(ev); ok {
			vev.AddProperty(ical.ComponentPropertyRrule, rule)
			for _, ex := range ev.ExceptionDates {
				vev.AddProperty(ical.ComponentPropertyExdate, floating(ex, ev.StartTime))
			}
		}
		if len(ev.Tags) > 0 {
			vev.AddProperty(ical.ComponentPropertyCategories, strings.Join(ev.Tags, ","))
		}
	}
	return cal.Serialize()
}

// floating renders YYYY-MM-DD and HH:mm as a local date-time without zone.
func floating(date, hhmm string) string {
	return strings.ReplaceAll(date, "-", "") + "T" + strings.ReplaceAll(hhmm, ":", "") + "00"
}

// ruleFor builds the RRULE value of a recurring series. A bounded series
// ends at the last second of its end date. UNTIL is floating like
// DTSTART, so subscribers in any zone keep the same last day.
func ruleFor(ev model.Event) (string, bool) {
	freq, ok := recurrence.Frequency(ev.Recurrence)
	if !ok || !ev.Recurrence.Repeats() {
		return "", false
	}
	rule := (&rrule.ROption{Freq: freq}).RRuleString()
	if ev.RecurrenceEndsOn != "" {
		if _, err := model.ParseDate(ev.RecurrenceEndsOn); err == nil {
			rule += ";UNTIL=" + strings.ReplaceAll(ev.RecurrenceEndsOn, "-", "") + "T235959"
		}
	}
	return rule, true
}
