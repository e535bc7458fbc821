package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError describes the first invalid field of an Event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate rejects events whose rules the expander could only bound by its
// iteration cap, plus the obvious shape errors.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if e.Start.IsZero() {
		return invalid("start", "must be set")
	}
	if e.End.Before(e.Start) {
		return invalid("end", "is before start")
	}
	if e.Recurring == nil {
		return nil
	}
	return e.Recurring.validate(e.Start)
}

func (r *Recurrence) validate(start time.Time) error {
	if !r.Frequency.Valid() {
		return invalid("recurring.frequency", "unknown frequency %q", r.Frequency)
	}
	if r.Interval < 1 {
		return invalid("recurring.interval", "must be >= 1, got %d", r.Interval)
	}
	if r.EndDate != nil && r.EndDate.Before(start) {
		return invalid("recurring.endDate", "is before the event start")
	}
	if len(r.DaysOfWeek) > 0 && r.Frequency != Weekly {
		return invalid("recurring.daysOfWeek", "only allowed for weekly rules")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("recurring.daysOfWeek", "weekday %d out of range 0..6", d)
		}
	}
	for i, ex := range r.Exceptions {
		if err := ex.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("recurring.exceptions[%d].%s", i, ve.Field)
			}
			return err
		}
	}
	return nil
}

// Validate checks a single exception in isolation.
func (ex RecurringException) Validate() error {
	if _, err := time.Parse(DateLayout, ex.Date); err != nil {
		return invalid("date", "want YYYY-MM-DD, got %q", ex.Date)
	}
	if ex.Start != nil && ex.End != nil && ex.End.Before(*ex.Start) {
		return invalid("end", "is before start")
	}
	return nil
}
