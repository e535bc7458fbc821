// Package agenda assembles one render pass: local events are expanded over
// the visible window and merged with imported feed events and holidays into
// a flat list of display items.
package agenda

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"daycal/internal/model"
	"daycal/internal/recurrence"
)

// Source tags where an item came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceICal    Source = "ical"
	SourceHoliday Source = "holiday"
)

// Input is everything one render pass needs.
type Input struct {
	Events     []model.Event
	Categories []model.Category
	Imported   []model.Event
	Holidays   []model.Event

	WindowStart time.Time
	WindowEnd   time.Time

	// MaxIterations caps expansion per event. Zero uses the expander default.
	MaxIterations int
}

// ExtendedProps lets the rendering surface trace an item back to the event
// and occurrence it was generated from.
type ExtendedProps struct {
	EventID        string   `json:"eventId"`
	OccurrenceDate string   `json:"occurrenceDate,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	CategoryID     string   `json:"categoryId,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Source         Source   `json:"source"`
}

// Item is one display-ready entry.
type Item struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	AllDay        bool          `json:"allDay"`
	Color         string        `json:"color,omitempty"`
	ExtendedProps ExtendedProps `json:"extendedProps"`
}

// View is the result of a render pass.
type View struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Items []Item    `json:"items"`
	// Truncated lists local events whose expansion hit the iteration cap.
	Truncated []string `json:"truncated,omitempty"`
}

// Build produces the items visible in [WindowStart, WindowEnd], sorted by
// start and then by ID.
func Build(in Input) (View, error) {
	if in.WindowStart.After(in.WindowEnd) {
		return View{}, recurrence.ErrInvalidWindow
	}

	colors := make(map[string]string, len(in.Categories))
	for _, c := range in.Categories {
		colors[c.ID] = c.Color
	}

	view := View{Start: in.WindowStart, End: in.WindowEnd, Items: make([]Item, 0)}
	x := recurrence.Expander{MaxIterations: in.MaxIterations}

	for _, ev := range in.Events {
		if ev.Recurring == nil {
			if overlaps(ev, in.WindowStart, in.WindowEnd) {
				view.Items = append(view.Items, item(occurrenceOf(ev), SourceLocal, colors))
			}
			continue
		}

		res, err := x.Expand(ev, in.WindowStart, in.WindowEnd)
		if err != nil {
			return View{}, fmt.Errorf("agenda: expand %s: %w", ev.ID, err)
		}
		if res.Truncated {
			view.Truncated = append(view.Truncated, ev.ID)
		}
		for _, occ := range res.Occurrences {
			view.Items = append(view.Items, item(occ, SourceLocal, colors))
		}
	}

	for _, ev := range in.Imported {
		if overlaps(ev, in.WindowStart, in.WindowEnd) {
			view.Items = append(view.Items, item(occurrenceOf(ev), SourceICal, colors))
		}
	}
	for _, ev := range in.Holidays {
		if overlaps(ev, in.WindowStart, in.WindowEnd) {
			view.Items = append(view.Items, item(occurrenceOf(ev), SourceHoliday, colors))
		}
	}

	sort.SliceStable(view.Items, func(i, j int) bool {
		a, b := view.Items[i], view.Items[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	return view, nil
}

func overlaps(ev model.Event, start, end time.Time) bool {
	return !ev.End.Before(start) && !ev.Start.After(end)
}

func occurrenceOf(ev model.Event) model.Occurrence {
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

func item(occ model.Occurrence, src Source, colors map[string]string) Item {
	color := occ.Color
	if color == "" {
		color = colors[occ.CategoryID]
	}
	return Item{
		ID:     occ.DisplayID(),
		Title:  occ.Title,
		Start:  occ.Start,
		End:    occ.End,
		AllDay: occ.AllDay,
		Color:  color,
		ExtendedProps: ExtendedProps{
			EventID:        occ.EventID,
			OccurrenceDate: occ.OccurrenceDate,
			Description:    occ.Description,
			Location:       occ.Location,
			CategoryID:     occ.CategoryID,
			Tags:           occ.Tags,
			Source:         src,
		},
	}
}
