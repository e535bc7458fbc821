package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/model"
	"daycal/internal/recurrence"
)

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func endOf(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func dailyStandup() model.Event {
	return model.Event{
		ID:     "standup",
		Title:  "Standup",
		Color:  "#3366ff",
		Tags:   []string{"work"},
		Start:  day(2024, 1, 1, 10),
		End:    day(2024, 1, 1, 11),
		AllDay: false,
		Recurring: &model.Recurrence{
			Frequency: model.Daily,
			Interval:  1,
		},
	}
}

func starts(occs []model.Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Start.Format("2006-01-02 15:04"))
	}
	return out
}

func TestExpandNonRecurringIsIdentity(t *testing.T) {
	ev := model.Event{
		ID:          "dentist",
		Title:       "Dentist",
		Description: "bring card",
		Location:    "Main St",
		CategoryID:  "health",
		Start:       day(2023, 6, 1, 9),
		End:         day(2023, 6, 1, 10),
	}

	// Window far away from the event: still returned.
	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, occs, 1)

	got := occs[0]
	assert.Empty(t, got.OccurrenceDate)
	assert.Equal(t, "dentist", got.EventID)
	assert.Equal(t, "dentist", got.DisplayID())
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.Description, got.Description)
	assert.Equal(t, ev.Location, got.Location)
	assert.Equal(t, ev.CategoryID, got.CategoryID)
	assert.True(t, got.Start.Equal(ev.Start))
	assert.True(t, got.End.Equal(ev.End))
}

func TestExpandDaily(t *testing.T) {
	ev := dailyStandup()
	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)
	require.Len(t, occs, 10)

	for i, o := range occs {
		want := day(2024, 1, 1+i, 10)
		assert.True(t, o.Start.Equal(want), "occurrence %d start = %v, want %v", i, o.Start, want)
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
		assert.Equal(t, want.Format("2006-01-02"), o.OccurrenceDate)
		assert.Equal(t, "standup-"+o.OccurrenceDate, o.DisplayID())
		if i > 0 {
			assert.True(t, o.Start.After(occs[i-1].Start))
		}
	}
}

func TestExpandWeeklyDaysOfWeek(t *testing.T) {
	ev := model.Event{
		ID:    "gym",
		Title: "Gym",
		Start: day(2024, 1, 1, 18), // Monday
		End:   day(2024, 1, 1, 19),
		Recurring: &model.Recurrence{
			Frequency:  model.Weekly,
			Interval:   1,
			DaysOfWeek: []int{1, 3, 5},
		},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 14))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01 18:00",
		"2024-01-03 18:00",
		"2024-01-05 18:00",
		"2024-01-08 18:00",
		"2024-01-10 18:00",
		"2024-01-12 18:00",
	}, starts(occs))
	for _, o := range occs {
		wd := o.Start.Weekday()
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, wd)
	}
}

func TestExpandWeeklyDaysOfWeekWithInterval(t *testing.T) {
	ev := model.Event{
		ID:    "review",
		Title: "Review",
		Start: day(2024, 1, 1, 9),
		End:   day(2024, 1, 1, 10),
		Recurring: &model.Recurrence{
			Frequency:  model.Weekly,
			Interval:   2,
			DaysOfWeek: []int{1, 3},
		},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01 09:00",
		"2024-01-03 09:00",
		"2024-01-15 09:00",
		"2024-01-17 09:00",
		"2024-01-29 09:00",
		"2024-01-31 09:00",
	}, starts(occs))
}

func TestExpandWeeklyStartDayNotInSet(t *testing.T) {
	ev := model.Event{
		ID:    "planning",
		Title: "Planning",
		Start: day(2024, 1, 2, 9), // Tuesday
		End:   day(2024, 1, 2, 10),
		Recurring: &model.Recurrence{
			Frequency:  model.Weekly,
			Interval:   1,
			DaysOfWeek: []int{1},
		},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 21))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-08 09:00", "2024-01-15 09:00"}, starts(occs))
}

func TestExpandWeeklyWithoutDays(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring = &model.Recurrence{Frequency: model.Weekly, Interval: 2}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01 10:00",
		"2024-01-15 10:00",
		"2024-01-29 10:00",
	}, starts(occs))
}

func TestExpandDeletedException(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Exceptions = []model.RecurringException{{Date: "2024-01-03", Deleted: true}}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)
	require.Len(t, occs, 9)
	for _, o := range occs {
		assert.NotEqual(t, "2024-01-03", o.OccurrenceDate)
	}
	assert.Equal(t, "2024-01-02", occs[1].OccurrenceDate)
	assert.Equal(t, "2024-01-04", occs[2].OccurrenceDate)
}

func TestExpandModifiedException(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Exceptions = []model.RecurringException{{Date: "2024-01-03", Title: ptr("Special")}}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)
	require.Len(t, occs, 10)

	for _, o := range occs {
		if o.OccurrenceDate == "2024-01-03" {
			assert.Equal(t, "Special", o.Title)
		} else {
			assert.Equal(t, "Standup", o.Title)
		}
		assert.Equal(t, "#3366ff", o.Color)
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
	}
}

func TestExpandExceptionOverridesTimes(t *testing.T) {
	ev := dailyStandup()
	movedStart := day(2024, 1, 5, 15)
	ev.Recurring.Exceptions = []model.RecurringException{
		// Jan 2 moved after Jan 4 with an explicit two-hour span.
		{Date: "2024-01-02", Start: ptr(movedStart), End: ptr(movedStart.Add(2 * time.Hour)), Location: ptr("Room 4")},
		// Start-only override keeps the series duration.
		{Date: "2024-01-03", Start: ptr(day(2024, 1, 3, 14))},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 5))
	require.NoError(t, err)
	require.Len(t, occs, 5)
	assert.Equal(t, []string{
		"2024-01-01 10:00",
		"2024-01-03 14:00",
		"2024-01-04 10:00",
		"2024-01-05 10:00",
		"2024-01-05 15:00",
	}, starts(occs))

	moved := occs[4]
	assert.Equal(t, "2024-01-02", moved.OccurrenceDate)
	assert.Equal(t, 2*time.Hour, moved.End.Sub(moved.Start))
	assert.Equal(t, "Room 4", moved.Location)
	assert.Equal(t, time.Hour, occs[1].End.Sub(occs[1].Start))
}

func TestExpandUnmatchedExceptionIsInert(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Interval = 2
	ev.Recurring.Exceptions = []model.RecurringException{
		{Date: "2024-01-02", Deleted: true},
		{Date: "2024-01-04", Title: ptr("never")},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 6))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01 10:00", "2024-01-03 10:00", "2024-01-05 10:00"}, starts(occs))
	for _, o := range occs {
		assert.Equal(t, "Standup", o.Title)
	}
}

func TestExpandEndDate(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.EndDate = ptr(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)
	require.Len(t, occs, 5)
	assert.Equal(t, "2024-01-05", occs[4].OccurrenceDate)
}

func TestExpandWindowLeftEdge(t *testing.T) {
	ev := model.Event{
		ID:        "night-shift",
		Title:     "Night shift",
		Start:     day(2024, 1, 1, 22),
		End:       day(2024, 1, 2, 6),
		Recurring: &model.Recurrence{Frequency: model.Daily, Interval: 1},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 5, 0), endOf(2024, 1, 5))
	require.NoError(t, err)
	// Jan 4 22:00 runs into the window; Jan 5 22:00 starts inside it.
	assert.Equal(t, []string{"2024-01-04 22:00", "2024-01-05 22:00"}, starts(occs))
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	ev := model.Event{
		ID:        "rent",
		Title:     "Rent",
		Start:     day(2024, 1, 31, 8),
		End:       day(2024, 1, 31, 9),
		Recurring: &model.Recurrence{Frequency: model.Monthly, Interval: 1},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 5, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-31 08:00",
		"2024-02-29 08:00",
		"2024-03-31 08:00",
		"2024-04-30 08:00",
		"2024-05-31 08:00",
	}, starts(occs))
}

func TestExpandYearlyLeapDay(t *testing.T) {
	ev := model.Event{
		ID:        "leap",
		Title:     "Leap birthday",
		AllDay:    true,
		Start:     day(2024, 2, 29, 0),
		End:       day(2024, 3, 1, 0),
		Recurring: &model.Recurrence{Frequency: model.Yearly, Interval: 1},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2028, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-02-29 00:00",
		"2025-02-28 00:00",
		"2026-02-28 00:00",
		"2027-02-28 00:00",
		"2028-02-29 00:00",
	}, starts(occs))
	for _, o := range occs {
		assert.True(t, o.AllDay)
	}
}

func TestExpandSkipsAheadOfWindow(t *testing.T) {
	ev := dailyStandup()
	ev.Start = day(2015, 3, 1, 10)
	ev.End = day(2015, 3, 1, 11)

	res, err := recurrence.Expander{}.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 31))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Len(t, res.Occurrences, 31)
	assert.Less(t, res.Iterations, 100)
	assert.Equal(t, "2024-01-01", res.Occurrences[0].OccurrenceDate)
}

func TestExpandWeekdaysSkipsAheadOfWindow(t *testing.T) {
	ev := model.Event{
		ID:    "gym",
		Title: "Gym",
		Start: day(2015, 1, 5, 18), // Monday
		End:   day(2015, 1, 5, 19),
		Recurring: &model.Recurrence{
			Frequency:  model.Weekly,
			Interval:   1,
			DaysOfWeek: []int{1, 3, 5},
		},
	}

	res, err := recurrence.Expander{}.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 14))
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, []string{
		"2024-01-01 18:00",
		"2024-01-03 18:00",
		"2024-01-05 18:00",
		"2024-01-08 18:00",
		"2024-01-10 18:00",
		"2024-01-12 18:00",
	}, starts(res.Occurrences))
}

func TestExpandIterationCap(t *testing.T) {
	t.Run("long window", func(t *testing.T) {
		ev := dailyStandup()
		res, err := recurrence.Expander{}.Expand(ev, day(2024, 1, 1, 0), endOf(2030, 12, 31))
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.Len(t, res.Occurrences, recurrence.DefaultMaxIterations)
		assert.Equal(t, recurrence.DefaultMaxIterations, res.Iterations)
	})

	t.Run("zero interval", func(t *testing.T) {
		ev := dailyStandup()
		ev.Recurring.Interval = 0
		res, err := recurrence.Expander{MaxIterations: 50}.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 2))
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.LessOrEqual(t, len(res.Occurrences), 50)
	})

	t.Run("window exhausted is not truncation", func(t *testing.T) {
		ev := dailyStandup()
		res, err := recurrence.Expander{MaxIterations: 10}.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
		require.NoError(t, err)
		assert.False(t, res.Truncated)
		assert.Len(t, res.Occurrences, 10)
	})
}

func TestExpandIdempotentAndPure(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Exceptions = []model.RecurringException{
		{Date: "2024-01-03", Title: ptr("Special")},
		{Date: "2024-01-05", Deleted: true},
	}
	before := dailyStandup()
	before.Recurring.Exceptions = []model.RecurringException{
		{Date: "2024-01-03", Title: ptr("Special")},
		{Date: "2024-01-05", Deleted: true},
	}

	first, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)
	first[0].Tags[0] = "mutated"
	first[0].Title = "mutated"

	second, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2024, 1, 10))
	require.NoError(t, err)

	assert.Equal(t, before, ev)
	assert.Equal(t, "Standup", second[0].Title)
	assert.Equal(t, []string{"work"}, second[0].Tags)
	assert.Equal(t, starts(first), starts(second))
}

func TestExpandKeepsBaseDuration(t *testing.T) {
	ev := model.Event{
		ID:        "offsite",
		Title:     "Offsite",
		Start:     time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		End:       time.Date(2024, 1, 1, 17, 45, 0, 0, time.UTC),
		Recurring: &model.Recurrence{Frequency: model.Monthly, Interval: 3},
	}

	occs, err := recurrence.Expand(ev, day(2024, 1, 1, 0), endOf(2026, 1, 1))
	require.NoError(t, err)
	require.NotEmpty(t, occs)
	for _, o := range occs {
		assert.Equal(t, ev.Duration(), o.End.Sub(o.Start))
	}
}

func TestExpandKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ev := model.Event{
		ID:        "walk",
		Title:     "Walk",
		Start:     time.Date(2024, 3, 8, 9, 0, 0, 0, loc),
		End:       time.Date(2024, 3, 8, 9, 30, 0, 0, loc),
		Recurring: &model.Recurrence{Frequency: model.Daily, Interval: 1},
	}

	occs, err := recurrence.Expand(ev, time.Date(2024, 3, 8, 0, 0, 0, 0, loc), time.Date(2024, 3, 12, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Len(t, occs, 4)
	for _, o := range occs {
		assert.Equal(t, 9, o.Start.Hour())
	}
}

func TestScheduledStart(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Interval = 2
	ev.Recurring.Exceptions = []model.RecurringException{{Date: "2024-01-03", Deleted: true}}

	got, ok := recurrence.ScheduledStart(ev, "2024-01-03")
	require.True(t, ok)
	assert.True(t, got.Equal(day(2024, 1, 3, 10)))

	_, ok = recurrence.ScheduledStart(ev, "2024-01-04")
	assert.False(t, ok)
	_, ok = recurrence.ScheduledStart(ev, "not-a-date")
	assert.False(t, ok)

	single := dailyStandup()
	single.Recurring = nil
	_, ok = recurrence.ScheduledStart(single, "2024-01-01")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	ev := dailyStandup()
	ev.Recurring.Exceptions = []model.RecurringException{
		{Date: "2024-01-02", Deleted: true},
		{Date: "2024-01-03", Title: ptr("Planning"), Start: ptr(day(2024, 1, 3, 14))},
	}

	occ, ok := recurrence.Resolve(ev, "2024-01-03")
	require.True(t, ok)
	assert.Equal(t, "Planning", occ.Title)
	assert.Equal(t, "2024-01-03", occ.OccurrenceDate)
	assert.True(t, occ.Start.Equal(day(2024, 1, 3, 14)))
	assert.True(t, occ.End.Equal(day(2024, 1, 3, 15)))

	occ, ok = recurrence.Resolve(ev, "2024-01-04")
	require.True(t, ok)
	assert.Equal(t, "Standup", occ.Title)

	_, ok = recurrence.Resolve(ev, "2024-01-02")
	assert.False(t, ok, "deleted")
	_, ok = recurrence.Resolve(ev, "2023-12-31")
	assert.False(t, ok, "before the series")
}

func TestExpandInvalidWindow(t *testing.T) {
	_, err := recurrence.Expand(dailyStandup(), day(2024, 2, 1, 0), day(2024, 1, 1, 0))
	assert.ErrorIs(t, err, recurrence.ErrInvalidWindow)

	_, err = recurrence.Expand(model.Event{ID: "single", Title: "x"}, day(2024, 2, 1, 0), day(2024, 1, 1, 0))
	assert.ErrorIs(t, err, recurrence.ErrInvalidWindow)
}
