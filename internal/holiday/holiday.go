// Package holiday computes public holidays and turns them into plain
// all-day events for the agenda.
package holiday

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"daycal/internal/model"
)

// Holiday is a named calendar date (YYYY-MM-DD).
type Holiday struct {
	Date string
	Name string
}

// Provider lists the holidays of one region for a year.
type Provider interface {
	Region() string
	Holidays(year int) []Holiday
}

// ForRegion returns the provider for a region code such as "de-nrw" or "us".
func ForRegion(region string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "de-nrw":
		return nrw{}, nil
	case "us":
		return usFederal{}, nil
	}
	return nil, fmt.Errorf("holiday: unknown region %q", region)
}

// InRange returns one all-day event per holiday whose day overlaps
// [start, end], evaluated in loc, sorted by date.
func InRange(p Provider, start, end time.Time, loc *time.Location) []model.Event {
	if loc == nil {
		loc = time.Local
	}
	events := make([]model.Event, 0)
	if end.Before(start) {
		return events
	}

	for year := start.In(loc).Year(); year <= end.In(loc).Year(); year++ {
		for _, h := range p.Holidays(year) {
			d, err := time.ParseInLocation(model.DateLayout, h.Date, loc)
			if err != nil {
				continue
			}
			next := d.AddDate(0, 0, 1)
			if !next.After(start) || d.After(end) {
				continue
			}
			events = append(events, model.Event{
				ID:     "holiday-" + p.Region() + "-" + h.Date,
				Title:  h.Name,
				Start:  d,
				End:    next,
				AllDay: true,
				Tags:   []string{"holiday"},
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events
}

// nrw covers the public holidays of North Rhine-Westphalia.
type nrw struct{}

func (nrw) Region() string { return "de-nrw" }

func (nrw) Holidays(year int) []Holiday {
	easter := calculateEaster(year)
	return []Holiday{
		{formatDate(year, 1, 1), "Neujahr"},
		{formatDateFromTime(easter.AddDate(0, 0, -2)), "Karfreitag"},
		{formatDateFromTime(easter.AddDate(0, 0, 1)), "Ostermontag"},
		{formatDate(year, 5, 1), "Tag der Arbeit"},
		{formatDateFromTime(easter.AddDate(0, 0, 39)), "Christi Himmelfahrt"},
		{formatDateFromTime(easter.AddDate(0, 0, 50)), "Pfingstmontag"},
		{formatDateFromTime(easter.AddDate(0, 0, 60)), "Fronleichnam"},
		{formatDate(year, 10, 3), "Tag der Deutschen Einheit"},
		{formatDate(year, 11, 1), "Allerheiligen"},
		{formatDate(year, 12, 25), "1. Weihnachtstag"},
		{formatDate(year, 12, 26), "2. Weihnachtstag"},
	}
}

// usFederal covers the US federal holidays (not the observed weekday shifts).
type usFederal struct{}

func (usFederal) Region() string { return "us" }

func (usFederal) Holidays(year int) []Holiday {
	return []Holiday{
		{formatDate(year, 1, 1), "New Year's Day"},
		{formatDateFromTime(nthWeekday(year, time.January, time.Monday, 3)), "Martin Luther King Jr. Day"},
		{formatDateFromTime(nthWeekday(year, time.February, time.Monday, 3)), "Washington's Birthday"},
		{formatDateFromTime(lastWeekday(year, time.May, time.Monday)), "Memorial Day"},
		{formatDate(year, 6, 19), "Juneteenth"},
		{formatDate(year, 7, 4), "Independence Day"},
		{formatDateFromTime(nthWeekday(year, time.September, time.Monday, 1)), "Labor Day"},
		{formatDateFromTime(nthWeekday(year, time.October, time.Monday, 2)), "Columbus Day"},
		{formatDate(year, 11, 11), "Veterans Day"},
		{formatDateFromTime(nthWeekday(year, time.November, time.Thursday, 4)), "Thanksgiving Day"},
		{formatDate(year, 12, 25), "Christmas Day"},
	}
}

// calculateEaster calculates Easter Sunday using the Meeus/Jones/Butcher algorithm
func calculateEaster(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	// Noon keeps the date stable when formatting.
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}

// nthWeekday returns the n-th (1-based) given weekday of a month.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the last given weekday of a month.
func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

func formatDate(year, month, day int) string {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC).Format(model.DateLayout)
}

func formatDateFromTime(t time.Time) string {
	return t.Format(model.DateLayout)
}
