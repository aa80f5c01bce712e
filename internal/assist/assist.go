// Package assist turns a one-line request such as
// "Design review with Jane tomorrow at 2pm for 30 minutes #product"
// into a draft of event fields.
package assist

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
)

// ErrEmptyPrompt is returned for blank input.
var ErrEmptyPrompt = errors.New("assist: empty prompt")

// DefaultDuration is used when the prompt names no length.
const DefaultDuration = time.Hour

// Draft holds whatever could be read from the prompt. Empty values mean
// "not mentioned".
type Draft struct {
	Title         string           `json:"title,omitempty"`
	Date          string           `json:"date,omitempty"`
	StartTime     string           `json:"startTime,omitempty"`
	EndTime       string           `json:"endTime,omitempty"`
	Recurrence    model.Recurrence `json:"recurrence,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	TaggedUserIDs []string         `json:"taggedUserIds,omitempty"`
}

// ApplyTo merges the non-empty draft values into f.
func (d Draft) ApplyTo(f model.Fields) model.Fields {
	if d.Title != "" {
		f.Title = d.Title
	}
	if d.Date != "" {
		f.Date = d.Date
	}
	if d.StartTime != "" {
		f.StartTime = d.StartTime
	}
	if d.EndTime != "" {
		f.EndTime = d.EndTime
	}
	if d.Recurrence != "" {
		f.Recurrence = d.Recurrence
	}
	if len(d.Tags) > 0 {
		f.Tags = append([]string(nil), d.Tags...)
	}
	if len(d.TaggedUserIDs) > 0 {
		f.TaggedUserIDs = append([]string(nil), d.TaggedUserIDs...)
	}
	return f
}

var (
	hashtagRe  = regexp.MustCompile(`#([\pL\pN][\pL\pN_-]*)`)
	mentionRe  = regexp.MustCompile(`@([\pL\pN_.-]+)`)
	durationRe = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s*(minutes?|mins?|m|hours?|hrs?|h)\b`)
	clockRe    = regexp.MustCompile(`(?i)\d{1,2}\s*(:\d{2}|[ap]\.?m\.?)|\bnoon\b|\bmidnight\b`)
	wordRe     = regexp.MustCompile(`[\pL\pN]+`)
	spaceRe    = regexp.MustCompile(`\s+`)

	recurrenceRes = []struct {
		re *regexp.Regexp
		r  model.Recurrence
	}{
		{regexp.MustCompile(`(?i)\b(every\s+day|daily)\b`), model.RecurrenceDaily},
		{regexp.MustCompile(`(?i)\b(every\s+week|weekly)\b`), model.RecurrenceWeekly},
		{regexp.MustCompile(`(?i)\b(every\s+month|monthly)\b`), model.RecurrenceMonthly},
	}
)

// Words left dangling at either end of the title once dates and mentions
// are cut out.
var fillers = map[string]bool{
	"at": true, "on": true, "and": true, "with": true, "for": true,
	"from": true, "by": true, "every": true, "-": true, ",": true,
}

// Parser reads prompts. It is safe for concurrent use once built.
type Parser struct {
	when     *when.Parser
	duration time.Duration
}

// NewParser returns a parser with the English and common date rules.
func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{when: w, duration: DefaultDuration}
}

// Parse reads text relative to now. Without a recognisable date the draft
// starts at the next full hour.
func (p *Parser) Parse(text string, users []model.User, now time.Time) (Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, ErrEmptyPrompt
	}
	var d Draft

	text = hashtagRe.ReplaceAllStringFunc(text, func(m string) string {
		d.Tags = appendUnique(d.Tags, titleCase(strings.TrimPrefix(m, "#")))
		return " "
	})

	for _, rr := range recurrenceRes {
		if rr.re.MatchString(text) {
			if d.Recurrence == "" {
				d.Recurrence = rr.r
			}
			text = rr.re.ReplaceAllString(text, " ")
		}
	}

	length := p.duration
	if m := durationRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "h") {
			length = time.Duration(n) * time.Hour
		} else {
			length = time.Duration(n) * time.Minute
		}
		text = durationRe.ReplaceAllString(text, " ")
	}

	text = mentionRe.ReplaceAllStringFunc(text, func(m string) string {
		if u, ok := matchUser(users, strings.TrimPrefix(m, "@")); ok {
			d.TaggedUserIDs = appendUnique(d.TaggedUserIDs, u.ID)
		}
		return " "
	})
	for _, w := range wordRe.FindAllString(text, -1) {
		if u, ok := matchUser(users, w); ok {
			d.TaggedUserIDs = appendUnique(d.TaggedUserIDs, u.ID)
		}
	}

	start := now.Truncate(time.Hour).Add(time.Hour)
	res, err := p.when.Parse(text, now)
	if err != nil {
		appLog.Warn("assist: date parse failed", "err", err)
	}
	if res != nil {
		start = res.Time
		if !clockRe.MatchString(res.Text) {
			start = time.Date(start.Year(), start.Month(), start.Day(), 9, 0, 0, 0, start.Location())
		}
		text = cut(text, res.Index, res.Text)
	}

	d.Date = model.FormatDate(start)
	d.StartTime = start.Format(model.TimeLayout)
	end := start.Add(length)
	if model.FormatDate(end) != d.Date || length <= 0 {
		d.EndTime = "23:59"
	} else {
		d.EndTime = end.Format(model.TimeLayout)
	}

	d.Title = cleanTitle(text)
	return d, nil
}

// matchUser compares word against usernames and first names, ignoring case.
func matchUser(users []model.User, word string) (model.User, bool) {
	for _, u := range users {
		if strings.EqualFold(word, u.Username) {
			return u, true
		}
		if first, _, _ := strings.Cut(u.Name, " "); first != "" && strings.EqualFold(word, first) {
			return u, true
		}
	}
	return model.User{}, false
}

// cut removes the matched date phrase from text.
func cut(text string, at int, match string) string {
	if at >= 0 && at+len(match) <= len(text) && text[at:at+len(match)] == match {
		return text[:at] + " " + text[at+len(match):]
	}
	return strings.Replace(text, match, " ", 1)
}

func cleanTitle(s string) string {
	words := strings.Fields(spaceRe.ReplaceAllString(s, " "))
	for len(words) > 0 && fillers[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && fillers[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Trim(strings.Join(words, " "), " ,-")
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
