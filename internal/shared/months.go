package shared

import (
	"strings"
	"time"
)

// MonthLayout is the wire format of a reporting month.
const MonthLayout = "2006-01"

// ParseMonth validates a YYYY-MM string. An empty value resolves to the
// month containing now.
func ParseMonth(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Format(MonthLayout), nil
	}
	t, err := time.Parse(MonthLayout, raw)
	if err != nil {
		return "", ErrInvalidMonth
	}
	return t.Format(MonthLayout), nil
}

// MonthBounds returns the first day of month and the first day of the next.
func MonthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(MonthLayout, month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidMonth
	}
	return t, t.AddDate(0, 1, 0), nil
}
