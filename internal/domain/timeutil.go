package domain

import (
	"errors"
	"fmt"
	"time"
)

// Wire timestamps are tenant-local wall clock without offset. They must not
// be normalized to UTC: "2024-01-05T09:00" means 09:00 on the clinic's wall
// clock regardless of DST.
const (
	WireDateTimeLayout = "2006-01-02T15:04"
	WireDateLayout     = "2006-01-02"
)

var errEmptyTime = errors.New("time value is required")

func ParseWireDateTime(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, errEmptyTime
	}
	t, err := time.ParseInLocation(WireDateTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: want YYYY-MM-DDTHH:MM", value)
	}
	return t, nil
}

func FormatWireDateTime(t time.Time) string {
	return t.Format(WireDateTimeLayout)
}

func ParseWireDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, errEmptyTime
	}
	t, err := time.ParseInLocation(WireDateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", value)
	}
	return t, nil
}

// ClockOnDate places a stored wall-clock string ("15:04" or "15:04:05") on a
// concrete date, keeping the date's location.
func ClockOnDate(date time.Time, clock string) (time.Time, error) {
	layout := "15:04"
	if len(clock) == len("15:04:05") {
		layout = "15:04:05"
	}
	c, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q", clock)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), c.Second(), 0, date.Location()), nil
}

// DayBounds returns the half-open [midnight, next midnight) interval of t's
// calendar day in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
