package core

import (
	"fmt"
	"time"
)

const (
	monthKeyLayout   = "2006-01"
	monthLabelLayout = "January 2006"
)

// MonthKey identifies a calendar month as "YYYY-MM".
type MonthKey string

// MonthOf returns the calendar month t falls in, in t's location.
func MonthOf(t time.Time) MonthKey {
	return MonthKey(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// CurrentMonthYear returns the local calendar month.
func CurrentMonthYear() MonthKey {
	return MonthOf(time.Now())
}

// ParseMonthKey validates a "YYYY-MM" string.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, err := time.Parse(monthKeyLayout, s); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidMonth, s)
	}
	return MonthKey(s), nil
}

// Start returns the first instant of the month in loc.
func (k MonthKey) Start(loc *time.Location) (time.Time, error) {
	t, err := time.Parse(monthKeyLayout, string(k))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidMonth, string(k))
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc), nil
}

// Next returns the following month. Malformed keys are returned unchanged.
func (k MonthKey) Next() MonthKey {
	return k.step(1)
}

// Prev returns the preceding month. Malformed keys are returned unchanged.
func (k MonthKey) Prev() MonthKey {
	return k.step(-1)
}

func (k MonthKey) step(n int) MonthKey {
	t, err := k.Start(time.UTC)
	if err != nil {
		return k
	}
	return MonthOf(t.AddDate(0, n, 0))
}

func (k MonthKey) String() string {
	return string(k)
}

// MonthBounds returns the inclusive millisecond window of the month in loc:
// its first instant up to one millisecond before the next month starts.
func MonthBounds(k MonthKey, loc *time.Location) (startMillis, endMillis int64, err error) {
	start, err := k.Start(loc)
	if err != nil {
		return 0, 0, err
	}
	next := start.AddDate(0, 1, 0)
	return start.UnixMilli(), next.UnixMilli() - 1, nil
}

// FormatMonthYear renders "2025-10" as "October 2025". Malformed input is
// returned unchanged.
func FormatMonthYear(s string) string {
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil {
		return s
	}
	return t.Format(monthLabelLayout)
}
