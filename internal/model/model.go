package model

// Recurrence is the repeat cadence of a series.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Normalize maps the legacy empty value to RecurrenceNone.
func (r Recurrence) Normalize() Recurrence {
	if r == "" {
		return RecurrenceNone
	}
	return r
}

func (r Recurrence) Valid() bool {
	switch r.Normalize() {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Repeats reports whether r produces more than one occurrence.
func (r Recurrence) Repeats() bool {
	n := r.Normalize()
	return n != RecurrenceNone && n.Valid()
}

// Event is the persisted series record. Field names match the JSON shape
// shared with the browser client and the key-value proxy.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Date is the anchor date (YYYY-MM-DD) and the first occurrence.
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	TaggedUserIDs []string `json:"taggedUserIds"`
	CreatedBy     string   `json:"createdBy"`

	Color Color `json:"color,omitempty"`
	// Legacy per-role colours; read-only fallbacks for Color.
	AdminColor Color `json:"adminColor,omitempty"`
	UserColor  Color `json:"userColor,omitempty"`

	Recurrence       Recurrence `json:"recurrence,omitempty"`
	RecurrenceEndsOn string     `json:"recurrenceEndsOn,omitempty"`
	ExceptionDates   []string   `json:"exceptionDates,omitempty"`

	Tags []string `json:"tags"`

	// Type is the "event" discriminator some stores keep alongside the record.
	Type string `json:"type,omitempty"`
}

// Fields are the user-editable parts of an event (the edit form).
type Fields struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Date             string     `json:"date"`
	StartTime        string     `json:"startTime"`
	EndTime          string     `json:"endTime"`
	TaggedUserIDs    []string   `json:"taggedUserIds"`
	Color            Color      `json:"color,omitempty"`
	Recurrence       Recurrence `json:"recurrence,omitempty"`
	RecurrenceEndsOn string     `json:"recurrenceEndsOn,omitempty"`
	Tags             []string   `json:"tags"`
}

// Fields extracts the editable fields of e.
func (e Event) Fields() Fields {
	return Fields{
		Title:            e.Title,
		Description:      e.Description,
		Date:             e.Date,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		TaggedUserIDs:    cloneStrings(e.TaggedUserIDs),
		Color:            ResolveColor(e),
		Recurrence:       e.Recurrence.Normalize(),
		RecurrenceEndsOn: e.RecurrenceEndsOn,
		Tags:             cloneStrings(e.Tags),
	}
}

// WithFields returns a copy of e carrying f. Identity, creator and
// exception dates are kept.
func (e Event) WithFields(f Fields) Event {
	out := e.Clone()
	out.Title = f.Title
	out.Description = f.Description
	out.Date = f.Date
	out.StartTime = f.StartTime
	out.EndTime = f.EndTime
	out.TaggedUserIDs = cloneStrings(f.TaggedUserIDs)
	if f.Color != "" {
		out.Color = f.Color
	}
	out.Recurrence = f.Recurrence.Normalize()
	out.RecurrenceEndsOn = f.RecurrenceEndsOn
	out.Tags = cloneStrings(f.Tags)
	return out.Normalized()
}

// Clone deep-copies the slice fields of e.
func (e Event) Clone() Event {
	out := e
	out.TaggedUserIDs = cloneStrings(e.TaggedUserIDs)
	out.ExceptionDates = cloneStrings(e.ExceptionDates)
	out.Tags = cloneStrings(e.Tags)
	return out
}

// Normalized resolves the effective colour, fills the recurrence default
// and replaces nil slices. Stores apply it once when records are read.
func (e Event) Normalized() Event {
	out := e.Clone()
	out.Color = ResolveColor(e)
	out.AdminColor = ""
	out.UserColor = ""
	out.Recurrence = e.Recurrence.Normalize()
	if out.TaggedUserIDs == nil {
		out.TaggedUserIDs = []string{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if !out.Recurrence.Repeats() {
		out.RecurrenceEndsOn = ""
		out.ExceptionDates = nil
	}
	return out
}

// HasException reports whether date is listed in e.ExceptionDates.
func (e Event) HasException(date string) bool {
	for _, d := range e.ExceptionDates {
		if d == date {
			return true
		}
	}
	return false
}

// Schedule is the tagged-union view of an event's date fields.
type Schedule interface {
	isSchedule()
}

// Single is a one-off event on Date.
type Single struct {
	Date string
}

// Recurring is a repeating series.
type Recurring struct {
	Anchor     string
	Pattern    Recurrence
	EndsOn     string // empty when unbounded
	Exceptions []string
}

func (Single) isSchedule()    {}
func (Recurring) isSchedule() {}

// Schedule returns the single or recurring view of e.
func (e Event) Schedule() Schedule {
	r := e.Recurrence.Normalize()
	if !r.Repeats() {
		return Single{Date: e.Date}
	}
	return Recurring{
		Anchor:     e.Date,
		Pattern:    r,
		EndsOn:     e.RecurrenceEndsOn,
		Exceptions: cloneStrings(e.ExceptionDates),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
