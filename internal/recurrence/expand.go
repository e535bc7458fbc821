// Package recurrence turns a stored event and its recurrence rule into the
// concrete occurrences that fall inside a visible date window.
package recurrence

import (
	"errors"
	"slices"
	"sort"
	"time"

	appLog "daycal/internal/log"
	"daycal/internal/model"
)

// DefaultMaxIterations bounds the candidates examined per event.
const DefaultMaxIterations = 1000

// ErrInvalidWindow is returned when the window start is after its end.
var ErrInvalidWindow = errors.New("recurrence: window start is after window end")

// Expander expands recurring events. The zero value uses
// DefaultMaxIterations and is safe for concurrent use.
type Expander struct {
	// MaxIterations caps how many candidate starts are examined for one
	// event. Zero or negative means DefaultMaxIterations.
	MaxIterations int
}

// Result is the outcome of expanding one event.
type Result struct {
	Occurrences []model.Occurrence
	// Truncated is set when the iteration cap stopped expansion before the
	// window or the rule's end date did.
	Truncated bool
	// Iterations is the number of candidates examined.
	Iterations int
}

var defaultExpander Expander

// Expand expands ev over [windowStart, windowEnd] with the default cap.
func Expand(ev model.Event, windowStart, windowEnd time.Time) ([]model.Occurrence, error) {
	res, err := defaultExpander.Expand(ev, windowStart, windowEnd)
	return res.Occurrences, err
}

// Expand produces the occurrences of ev that intersect [windowStart,
// windowEnd], in ascending order of their resolved start.
//
// An event without a recurrence rule is returned as its single occurrence
// whatever the window. Exceptions are matched by the UTC date of each
// originally scheduled start; deleted ones are skipped, others override the
// base fields they set. ev is never modified.
func (x Expander) Expand(ev model.Event, windowStart, windowEnd time.Time) (Result, error) {
	if windowStart.After(windowEnd) {
		return Result{}, ErrInvalidWindow
	}

	rule := ev.Recurring
	if rule == nil {
		return Result{Occurrences: []model.Occurrence{single(ev)}}, nil
	}

	limit := x.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	dur := ev.Duration()
	s := newStepper(ev.Start, rule)

	var stopAt time.Time
	if rule.EndDate != nil {
		stopAt = endOfDay(rule.EndDate.In(ev.Start.Location()))
	}

	var res Result
	out := make([]model.Occurrence, 0)

	for c := s.first(windowStart, dur); !c.at.After(windowEnd); c = s.next(c) {
		if !stopAt.IsZero() && !c.at.Before(stopAt) {
			break
		}
		if res.Iterations == limit {
			res.Truncated = true
			break
		}
		res.Iterations++

		key := model.OccurrenceKey(c.at)
		ex, found := rule.Exception(key)
		if found && ex.Deleted {
			continue
		}
		if !s.included(c) {
			continue
		}
		if !c.at.Before(windowStart) || !c.at.Add(dur).Before(windowStart) {
			out = append(out, occurrence(ev, key, c.at, dur, ex, found))
		}
	}

	// Overridden starts can move an occurrence past its neighbours.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	res.Occurrences = out

	if res.Truncated {
		appLog.Warn("recurrence: expansion hit iteration cap",
			"event_id", ev.ID,
			"cap", limit,
			"emitted", len(out),
			"window_start", windowStart.Format(time.RFC3339),
			"window_end", windowEnd.Format(time.RFC3339),
		)
	}
	return res, nil
}

// ScheduledStart returns the originally scheduled start of the occurrence
// keyed by date, ignoring exceptions. ok is false when the rule produces no
// occurrence on that date.
func ScheduledStart(ev model.Event, date string) (time.Time, bool) {
	if ev.Recurring == nil {
		return time.Time{}, false
	}
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return time.Time{}, false
	}

	plain := ev
	rule := *ev.Recurring
	rule.Exceptions = nil
	plain.Recurring = &rule

	res, err := defaultExpander.Expand(plain, day, day.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return time.Time{}, false
	}
	for _, o := range res.Occurrences {
		if o.OccurrenceDate == date {
			return o.Start, true
		}
	}
	return time.Time{}, false
}

// Resolve returns the occurrence keyed by date as it would be rendered, with
// its exception applied. ok is false when the date is not scheduled or the
// occurrence is deleted.
func Resolve(ev model.Event, date string) (model.Occurrence, bool) {
	start, ok := ScheduledStart(ev, date)
	if !ok {
		return model.Occurrence{}, false
	}
	ex, found := ev.Recurring.Exception(date)
	if found && ex.Deleted {
		return model.Occurrence{}, false
	}
	return occurrence(ev, date, start, ev.Duration(), ex, found), true
}

func single(ev model.Event) model.Occurrence {
	return model.Occurrence{
		EventID:     ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Color:       ev.Color,
		CategoryID:  ev.CategoryID,
		Tags:        slices.Clone(ev.Tags),
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
	}
}

// occurrence builds the instance scheduled at start, overlaying ex when it
// was found.
func occurrence(ev model.Event, key string, start time.Time, dur time.Duration, ex model.RecurringException, found bool) model.Occurrence {
	occ := single(ev)
	occ.OccurrenceDate = key
	occ.Start = start
	occ.End = start.Add(dur)
	if !found {
		return occ
	}

	overlay(&occ.Title, ex.Title)
	overlay(&occ.Description, ex.Description)
	overlay(&occ.Location, ex.Location)
	overlay(&occ.Color, ex.Color)
	overlay(&occ.CategoryID, ex.CategoryID)

	switch {
	case ex.Start != nil && ex.End != nil:
		occ.Start, occ.End = *ex.Start, *ex.End
	case ex.Start != nil:
		// A moved occurrence keeps the series duration.
		occ.Start = *ex.Start
		occ.End = ex.Start.Add(dur)
	case ex.End != nil:
		occ.End = *ex.End
	}
	return occ
}

func overlay(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// endOfDay returns the first instant of the day after t, in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
