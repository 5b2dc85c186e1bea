// Package dateutil holds the calendar-day helpers shared by the HR and
// rental modules. All stored dates are midnight UTC.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return Day(time.Now())
}

// Parse accepts "2006-01-02" and RFC 3339 timestamps.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// ParseOptional returns nil for nil or blank input.
func ParseOptional(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := Parse(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// DayBefore is the calendar day preceding t.
func DayBefore(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, -1)
}

// DaysInclusive counts calendar days from start to end, both included.
func DaysInclusive(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours()/24) + 1
}

// MonthRange returns [first day, first day of next month).
func MonthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func Format(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

func FormatDateTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateTimeLayout)
	return &s
}
