package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"daycal/internal/model"
	"daycal/internal/recurrence"
)

const productID = "-//daycal//daycal//EN"

var rruleFreq = map[model.Frequency]rrule.Frequency{
	model.Daily:   rrule.DAILY,
	model.Weekly:  rrule.WEEKLY,
	model.Monthly: rrule.MONTHLY,
	model.Yearly:  rrule.YEARLY,
}

// indexed by time.Weekday
var rruleWeekday = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RRule renders a recurrence rule as an RFC 5545 RRULE value. The end date
// is inclusive of its whole day in the event's zone.
func RRule(ev model.Event) (string, error) {
	r := ev.Recurring
	if r == nil {
		return "", fmt.Errorf("ics: event %s does not recur", ev.ID)
	}
	freq, ok := rruleFreq[r.Frequency]
	if !ok {
		return "", fmt.Errorf("ics: unknown frequency %q", r.Frequency)
	}

	opt := rrule.ROption{Freq: freq, Interval: r.Interval}
	if r.EndDate != nil {
		d := r.EndDate.In(ev.Start.Location())
		next := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, d.Location())
		opt.Until = next.Add(-time.Second).UTC()
	}
	if r.Frequency == model.Weekly {
		for _, d := range r.DaysOfWeek {
			if d >= 0 && d < len(rruleWeekday) {
				opt.Byweekday = append(opt.Byweekday, rruleWeekday[d])
			}
		}
	}
	return opt.RRuleString(), nil
}

// Export serializes local events into one VCALENDAR document. Deleted
// occurrences become EXDATEs and edited ones become RECURRENCE-ID overrides;
// exceptions that match no scheduled occurrence are left out.
func Export(events []model.Event, categories []model.Category, now time.Time) (string, error) {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now)
		fillVEvent(ve, ev.Title, ev.Description, ev.Location, ev.Color, ev.Start, ev.End, ev.AllDay,
			categoryList(names[ev.CategoryID], ev.Tags))

		if ev.Recurring == nil {
			continue
		}
		rule, err := RRule(ev)
		if err != nil {
			return "", err
		}
		ve.AddRrule(rule)

		for _, ex := range ev.Recurring.Exceptions {
			orig, ok := recurrence.ScheduledStart(ev, ex.Date)
			if !ok {
				continue
			}
			if ex.Deleted {
				if ev.AllDay {
					ve.AddExdate(orig.Format("20060102"), dateValue)
				} else {
					ve.AddExdate(orig.UTC().Format(utcLayout))
				}
				continue
			}

			occ, ok := recurrence.Resolve(ev, ex.Date)
			if !ok {
				continue
			}
			ov := cal.AddEvent(ev.ID)
			ov.SetDtStampTime(now)
			if ev.AllDay {
				ov.SetProperty(ical.ComponentProperty("RECURRENCE-ID"), orig.Format("20060102"), dateValue)
			} else {
				ov.SetProperty(ical.ComponentProperty("RECURRENCE-ID"), orig.UTC().Format(utcLayout))
			}
			fillVEvent(ov, occ.Title, occ.Description, occ.Location, occ.Color, occ.Start, occ.End, occ.AllDay,
				categoryList(names[occ.CategoryID], occ.Tags))
		}
	}

	return cal.Serialize(), nil
}

const utcLayout = "20060102T150405Z"

var dateValue = &ical.KeyValues{Key: "VALUE", Value: []string{"DATE"}}

func fillVEvent(ve *ical.VEvent, title, description, location, color string, start, end time.Time, allDay bool, categories []string) {
	ve.SetSummary(title)
	if description != "" {
		ve.SetDescription(description)
	}
	if location != "" {
		ve.SetLocation(location)
	}
	if color != "" {
		ve.SetProperty(ical.ComponentProperty("COLOR"), color)
	}
	if len(categories) > 0 {
		ve.SetProperty(ical.ComponentPropertyCategories, strings.Join(categories, ","))
	}
	if allDay {
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
		return
	}
	ve.SetStartAt(start)
	ve.SetEndAt(end)
}

func categoryList(category string, tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	if category != "" {
		out = append(out, category)
	}
	return append(out, tags...)
}
