package model

import (
	"strings"
	"time"
)

// DateLayout is the layout of occurrence keys (the UTC calendar date of the
// originally scheduled start).
const DateLayout = "2006-01-02"

// Frequency is the unit a recurrence rule steps in.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Event is the canonical, persisted calendar entry. Start/End describe the
// first occurrence; End-Start is reused as the duration of every generated
// instance.
type Event struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Color       string   `json:"color,omitempty" yaml:"color,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty" yaml:"category_id,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	AllDay bool      `json:"allDay,omitempty" yaml:"all_day,omitempty"`

	// Recurring is nil for single events.
	Recurring *Recurrence `json:"recurring,omitempty" yaml:"recurring,omitempty"`
}

// Duration is the span of the first occurrence.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Recurrence is the rule attached to a recurring Event.
type Recurrence struct {
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Interval  int       `json:"interval" yaml:"interval"`

	// EndDate is the last instant an occurrence may start at. Nil means the
	// series is bounded only by the expansion window and iteration cap.
	EndDate *time.Time `json:"endDate,omitempty" yaml:"end_date,omitempty"`

	// DaysOfWeek (0=Sunday..6=Saturday) only applies to weekly rules.
	DaysOfWeek []int `json:"daysOfWeek,omitempty" yaml:"days_of_week,omitempty"`

	// Exceptions are kept in insertion order.
	Exceptions []RecurringException `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
}

// Exception returns the exception recorded for the occurrence originally
// scheduled on date, if any. The first match wins.
func (r *Recurrence) Exception(date string) (RecurringException, bool) {
	if r == nil {
		return RecurringException{}, false
	}
	for _, ex := range r.Exceptions {
		if ex.Date == date {
			return ex, true
		}
	}
	return RecurringException{}, false
}

// RecurringException either suppresses one occurrence (Deleted) or
// overrides some of its fields. Nil fields fall back to the base event.
type RecurringException struct {
	Date    string `json:"date" yaml:"date"`
	Deleted bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`

	Title       *string    `json:"title,omitempty" yaml:"title,omitempty"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	Location    *string    `json:"location,omitempty" yaml:"location,omitempty"`
	Color       *string    `json:"color,omitempty" yaml:"color,omitempty"`
	CategoryID  *string    `json:"categoryId,omitempty" yaml:"category_id,omitempty"`
	Start       *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End         *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// Occurrence is one concrete, display-ready instance of an Event.
type Occurrence struct {
	EventID string `json:"eventId"`

	// OccurrenceDate is the original scheduled date key. Empty for
	// occurrences of non-recurring events.
	OccurrenceDate string `json:"occurrenceDate,omitempty"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Color       string   `json:"color,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"allDay,omitempty"`
}

// DisplayID is the rendering key for this occurrence.
func (o Occurrence) DisplayID() string {
	return DisplayID(o.EventID, o.OccurrenceDate)
}

// Category groups events for display.
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// OccurrenceKey returns the exception key for an originally scheduled start.
// Keys always use the UTC calendar date so that the write side (editing an
// occurrence) and the read side (expansion) agree.
func OccurrenceKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DisplayID joins an event ID and occurrence date into the composite key
// used by the rendering surface. An empty date yields the event ID.
func DisplayID(eventID, occurrenceDate string) string {
	if occurrenceDate == "" {
		return eventID
	}
	return eventID + "-" + occurrenceDate
}

// ParseDisplayID splits a composite key produced by DisplayID. When the key
// has no date suffix, occurrenceDate is empty.
func ParseDisplayID(id string) (eventID, occurrenceDate string) {
	n := len(DateLayout)
	if len(id) <= n+1 || id[len(id)-n-1] != '-' {
		return id, ""
	}
	suffix := id[len(id)-n:]
	if _, err := time.Parse(DateLayout, suffix); err != nil {
		return id, ""
	}
	return strings.TrimSuffix(id, "-"+suffix), suffix
}
