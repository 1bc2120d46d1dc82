package scheduler

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// Kind is how a template recurs.
type Kind string

const (
	// KindHourly fires every IntervalHours hours after the previous fire.
	KindHourly Kind = "hourly"
	// KindDaily fires every day at Hour:Minute.
	KindDaily Kind = "daily"
	// KindWeekly fires on Weekday at Hour:Minute.
	KindWeekly Kind = "weekly"
	// KindMonthly fires on DayOfMonth at Hour:Minute. Days past the end of
	// a short month fire on its last day.
	KindMonthly Kind = "monthly"
)

// Recurrence describes when a template fires.
type Recurrence struct {
	Kind          Kind         `json:"kind"`
	Hour          int          `json:"hour,omitempty"`
	Minute        int          `json:"minute,omitempty"`
	Weekday       time.Weekday `json:"weekday,omitempty"`
	DayOfMonth    int          `json:"day_of_month,omitempty"`
	IntervalHours int          `json:"interval_hours,omitempty"`
}

// Validate checks the fields the kind uses.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case KindHourly:
		if r.IntervalHours < 1 {
			return errors.NewValidationError("hourly recurrence needs interval_hours >= 1").
				WithField("interval_hours").WithValue(r.IntervalHours)
		}
		return nil
	case KindDaily, KindWeekly, KindMonthly:
	default:
		return errors.NewValidationError("unknown recurrence kind").WithField("kind").WithValue(r.Kind)
	}

	if r.Hour < 0 || r.Hour > 23 {
		return errors.NewValidationError("hour must be 0-23").WithField("hour").WithValue(r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return errors.NewValidationError("minute must be 0-59").WithField("minute").WithValue(r.Minute)
	}
	if r.Kind == KindWeekly && (r.Weekday < time.Sunday || r.Weekday > time.Saturday) {
		return errors.NewValidationError("weekday must be 0-6").WithField("weekday").WithValue(int(r.Weekday))
	}
	if r.Kind == KindMonthly && (r.DayOfMonth < 1 || r.DayOfMonth > 31) {
		return errors.NewValidationError("day_of_month must be 1-31").WithField("day_of_month").WithValue(r.DayOfMonth)
	}
	return nil
}

// Next returns the earliest instant strictly after now that satisfies r,
// evaluated in loc. Calling Next again with the result yields the
// following occurrence.
func (r Recurrence) Next(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()

	switch r.Kind {
	case KindHourly:
		return now.Add(time.Duration(r.IntervalHours) * time.Hour)

	case KindDaily:
		t := time.Date(y, m, d, r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(y, m, d+1, r.Hour, r.Minute, 0, 0, loc)
		}
		return t

	case KindWeekly:
		ahead := (int(r.Weekday) - int(local.Weekday()) + 7) % 7
		t := time.Date(y, m, d+ahead, r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(y, m, d+ahead+7, r.Hour, r.Minute, 0, 0, loc)
		}
		return t

	case KindMonthly:
		t := time.Date(y, m, clampDay(y, m, r.DayOfMonth), r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			ny, nm := y, m+1
			if nm > time.December {
				ny, nm = y+1, time.January
			}
			t = time.Date(ny, nm, clampDay(ny, nm, r.DayOfMonth), r.Hour, r.Minute, 0, 0, loc)
		}
		return t
	}
	return time.Time{}
}

// String renders the recurrence for logs and the dashboard.
func (r Recurrence) String() string {
	switch r.Kind {
	case KindHourly:
		return fmt.Sprintf("every %dh", r.IntervalHours)
	case KindDaily:
		return fmt.Sprintf("daily at %02d:%02d", r.Hour, r.Minute)
	case KindWeekly:
		return fmt.Sprintf("%s at %02d:%02d", r.Weekday, r.Hour, r.Minute)
	case KindMonthly:
		return fmt.Sprintf("monthly on day %d at %02d:%02d", r.DayOfMonth, r.Hour, r.Minute)
	default:
		return string(r.Kind)
	}
}

// daysIn returns the number of days in month m of year y.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(y int, m time.Month, day int) int {
	return min(day, daysIn(y, m))
}
