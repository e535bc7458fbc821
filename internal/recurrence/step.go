package recurrence

import (
	"time"

	"daycal/internal/model"
)

// cursor is one candidate start. index counts interval steps from the anchor
// for the fixed-step frequencies and days from the anchor for weekday rules.
type cursor struct {
	index int
	at    time.Time
}

// stepper walks candidate starts for a single rule. All of its methods are
// pure: next(c) depends only on the rule, the anchor and c.
type stepper struct {
	freq     model.Frequency
	interval int
	anchor   time.Time

	hasDays bool
	days    [7]bool
	// anchorWeek is the Sunday starting the anchor's week.
	anchorWeek time.Time
}

func newStepper(anchor time.Time, rule *model.Recurrence) stepper {
	s := stepper{
		freq:     rule.Frequency,
		interval: rule.Interval,
		anchor:   anchor,
	}
	if rule.Frequency == model.Weekly && len(rule.DaysOfWeek) > 0 {
		s.hasDays = true
		for _, d := range rule.DaysOfWeek {
			if d >= 0 && d <= 6 {
				s.days[d] = true
			}
		}
		s.anchorWeek = startOfWeek(anchor)
	}
	return s
}

// at returns the n-th candidate of a fixed-step rule. Computing from the
// anchor keeps month-end clamping stable (Jan 31, Feb 29, Mar 31, ...).
func (s stepper) at(n int) time.Time {
	k := n * s.interval
	switch s.freq {
	case model.Daily:
		return s.anchor.AddDate(0, 0, k)
	case model.Weekly:
		return s.anchor.AddDate(0, 0, 7*k)
	case model.Monthly:
		return addMonthsClamped(s.anchor, k)
	case model.Yearly:
		return addMonthsClamped(s.anchor, 12*k)
	}
	// Unknown frequency: never advance, the iteration cap ends the loop.
	return s.anchor
}

// first returns the starting cursor. Candidates that provably end before
// windowStart are skipped without iterating; they can never be emitted.
func (s stepper) first(windowStart time.Time, dur time.Duration) cursor {
	c := cursor{at: s.anchor}
	if s.interval < 1 {
		return c
	}

	// One block is the most wall time a single skip unit can cover, so every
	// candidate inside the skipped blocks ends before windowStart. Each pass
	// shrinks the remaining gap by at least the DST slack factor.
	var block time.Duration
	var perBlock int
	if s.hasDays {
		block = time.Duration(s.interval) * 7 * maxDay
		perBlock = s.interval * 7
	} else {
		unit, ok := maxUnit[s.freq]
		if !ok {
			return c
		}
		block = time.Duration(s.interval) * unit
		perBlock = 1
	}

	for {
		gap := windowStart.Sub(c.at) - dur
		if gap <= 0 {
			return c
		}
		skip := int(gap / block)
		if skip == 0 {
			return c
		}
		c.index += skip * perBlock
		if s.hasDays {
			c.at = s.anchor.AddDate(0, 0, c.index)
		} else {
			c.at = s.at(c.index)
		}
	}
}

// next advances to the following candidate.
func (s stepper) next(c cursor) cursor {
	if !s.hasDays {
		n := c.index + 1
		return cursor{index: n, at: s.at(n)}
	}

	// Scan day by day for the next allowed weekday in an included week.
	limit := 7
	if s.interval > 1 {
		limit = 7 * s.interval
	}
	for d := 1; d <= limit; d++ {
		cand := cursor{index: c.index + d, at: s.anchor.AddDate(0, 0, c.index+d)}
		if s.included(cand) {
			return cand
		}
	}

	// Only reachable for a rule without usable weekdays.
	n := c.index + 7*s.interval
	return cursor{index: n, at: s.anchor.AddDate(0, 0, n)}
}

// included reports whether a candidate is a real occurrence under the rule.
// Fixed-step candidates always are; weekday rules need a listed weekday in a
// week that is a multiple of interval weeks from the anchor's week.
func (s stepper) included(c cursor) bool {
	if !s.hasDays {
		return true
	}
	if !s.days[c.at.Weekday()] {
		return false
	}
	if s.interval <= 1 {
		return true
	}
	week := daysBetween(s.anchorWeek, c.at) / 7
	return week%s.interval == 0
}

// maxDay bounds a calendar day across DST transitions.
const maxDay = 25 * time.Hour

// maxUnit is an upper bound on the wall time one step of each frequency can
// span, used to skip candidates ahead of the window safely.
var maxUnit = map[model.Frequency]time.Duration{
	model.Daily:   maxDay,
	model.Weekly:  7 * maxDay,
	model.Monthly: 31 * maxDay,
	model.Yearly:  366 * maxDay,
}

// addMonthsClamped adds n calendar months, clamping the day to the last day of
// the target month instead of rolling over.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	y += floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12) + 1
	if last := daysIn(y, month); d > last {
		d = last
	}
	return time.Date(y, month, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func startOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(t.Weekday()))
}

// daysBetween counts calendar days from a to b in a's location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
